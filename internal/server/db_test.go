package server

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jkoivu/picorelay/internal/config"
	"github.com/jkoivu/picorelay/internal/models"
	"gorm.io/datatypes"
)

// setupTestDB points the package-level DB at a fresh on-disk sqlite file.
// A single pooled connection keeps concurrent writers from tripping over
// sqlite's file locking; the poll race still interleaves across queries.
func setupTestDB(t *testing.T) {
	t.Helper()
	cfg := &config.Config{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "test.db"),
	}
	if err := InitDB(cfg); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	sqlDB, err := DB.DB()
	if err != nil {
		t.Fatalf("DB.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}

func TestInitDBRejectsUnknownDriver(t *testing.T) {
	err := InitDB(&config.Config{DBDriver: "mongodb", DBPath: "x"})
	if err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestRecentReadingsLimitAndOrder(t *testing.T) {
	setupTestDB(t)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 10; i++ {
		r := models.Reading{
			DeviceID:   "pico-a",
			Temp:       float64(i),
			ReportedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := SaveReading(&r); err != nil {
			t.Fatalf("SaveReading: %v", err)
		}
	}

	got, err := RecentReadings(3, "pico-a")
	if err != nil {
		t.Fatalf("RecentReadings: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	// The 3 most recent, responded oldest-first.
	for i, want := range []float64{7, 8, 9} {
		if got[i].Temp != want {
			t.Fatalf("readings[%d].Temp = %v, want %v", i, got[i].Temp, want)
		}
	}
}

func TestRecentReadingsDeviceFilterAndClamp(t *testing.T) {
	setupTestDB(t)
	now := time.Now()

	for _, dev := range []string{"pico-a", "pico-b"} {
		r := models.Reading{DeviceID: dev, Temp: 20, ReportedAt: now}
		if err := SaveReading(&r); err != nil {
			t.Fatalf("SaveReading: %v", err)
		}
	}

	got, err := RecentReadings(0, "pico-b")
	if err != nil {
		t.Fatalf("RecentReadings: %v", err)
	}
	if len(got) != 1 || got[0].DeviceID != "pico-b" {
		t.Fatalf("device filter failed: %+v", got)
	}

	// A limit beyond the cap must not error, just clamp.
	if _, err := RecentReadings(10_000, ""); err != nil {
		t.Fatalf("RecentReadings with oversized limit: %v", err)
	}
}

func TestEnqueueConsumeRoundTrip(t *testing.T) {
	setupTestDB(t)

	params := datatypes.JSON(`{"fan":80}`)
	queued, err := EnqueueCommand("pico-a", params, time.Now())
	if err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}
	if queued.Consumed {
		t.Fatalf("freshly queued command marked consumed")
	}
	if queued.CommandID == "" {
		t.Fatalf("expected a command id")
	}

	got, err := NextCommand("pico-a", true)
	if err != nil {
		t.Fatalf("NextCommand: %v", err)
	}
	if got == nil || got.CommandID != queued.CommandID {
		t.Fatalf("unexpected delivery: %+v", got)
	}
	if !got.Consumed || got.DeliveredAt == nil {
		t.Fatalf("consume-poll did not mark delivery: %+v", got)
	}
	if string(got.Params) != `{"fan":80}` {
		t.Fatalf("params mangled: %s", got.Params)
	}

	// Mailbox now empty.
	again, err := NextCommand("pico-a", true)
	if err != nil {
		t.Fatalf("NextCommand: %v", err)
	}
	if again != nil {
		t.Fatalf("expected empty mailbox, got %+v", again)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	setupTestDB(t)

	queued, err := EnqueueCommand("pico-a", datatypes.JSON(`{"mode":"manual"}`), time.Now())
	if err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := NextCommand("pico-a", false)
		if err != nil {
			t.Fatalf("peek %d: %v", i, err)
		}
		if got == nil || got.CommandID != queued.CommandID || got.Consumed {
			t.Fatalf("peek %d returned %+v", i, got)
		}
	}
}

func TestPollIsFIFOPerDevice(t *testing.T) {
	setupTestDB(t)
	base := time.Now().Add(-time.Minute)

	var ids []string
	for i := 0; i < 3; i++ {
		cmd, err := EnqueueCommand("pico-a", datatypes.JSON(fmt.Sprintf(`{"seq":%d}`, i)),
			base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("EnqueueCommand: %v", err)
		}
		ids = append(ids, cmd.CommandID)
	}
	// Another device's entry must not leak in.
	if _, err := EnqueueCommand("pico-b", datatypes.JSON(`{}`), base); err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}

	for i, want := range ids {
		got, err := NextCommand("pico-a", true)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if got == nil || got.CommandID != want {
			t.Fatalf("poll %d delivered %+v, want id %s", i, got, want)
		}
	}
}

func TestConcurrentConsumeDeliversExactlyOnce(t *testing.T) {
	setupTestDB(t)

	const queued = 5
	const pollers = 12
	now := time.Now()
	for i := 0; i < queued; i++ {
		if _, err := EnqueueCommand("pico-a", datatypes.JSON(fmt.Sprintf(`{"seq":%d}`, i)),
			now.Add(time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatalf("EnqueueCommand: %v", err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered []string
		empties   int
	)
	for p := 0; p < pollers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd, err := NextCommand("pico-a", true)
			if err != nil {
				t.Errorf("NextCommand: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if cmd == nil {
				empties++
			} else {
				delivered = append(delivered, cmd.CommandID)
			}
		}()
	}
	wg.Wait()

	if len(delivered) != queued || empties != pollers-queued {
		t.Fatalf("delivered %d, empty %d; want %d and %d",
			len(delivered), empties, queued, pollers-queued)
	}
	seen := make(map[string]bool, len(delivered))
	for _, id := range delivered {
		if seen[id] {
			t.Fatalf("command %s delivered twice", id)
		}
		seen[id] = true
	}
}
