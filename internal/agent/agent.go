// Package agent implements the PicoRelay host agent daemon.
// It periodically reports a temperature reading to the server and
// consume-polls its command mailbox, applying fan/mode changes locally.
// A real Pico node speaks the same two endpoints from firmware.
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jkoivu/picorelay/internal/config"
)

// ReadingPayload is the body of POST /api/ingest.
type ReadingPayload struct {
	DeviceID string  `json:"device_id"`
	Temp     float64 `json:"temp"`
	Fan      float64 `json:"fan"`
	Mode     string  `json:"mode"`
}

// commandBody is the subset of the mailbox entry the agent cares about.
type commandBody struct {
	ID     string         `json:"id"`
	Params map[string]any `json:"params"`
}

// Run starts the agent main loop: report a reading every interval, then
// drain the mailbox. cfg.AgentJoinAddr is the server address, e.g.
// "192.168.1.10:8080".
func Run(cfg *config.Config) error {
	base := fmt.Sprintf("http://%s", cfg.AgentJoinAddr)
	collector := NewCollector()

	deviceID := cfg.AgentDeviceID
	if deviceID == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolving device id: %w", err)
		}
		deviceID = host
	}

	client := &http.Client{Timeout: 10 * time.Second}

	ticker := time.NewTicker(time.Duration(cfg.AgentInterval) * time.Second)
	defer ticker.Stop()

	fmt.Printf("[agent] reporting as %s every %ds. Press Ctrl+C to stop.\n", deviceID, cfg.AgentInterval)
	for ; ; <-ticker.C {
		snap := collector.Collect()
		payload := ReadingPayload{
			DeviceID: deviceID,
			Temp:     snap.Temp,
			Fan:      snap.Fan,
			Mode:     snap.Mode,
		}
		if err := postJSON(client, base+"/api/ingest", payload); err != nil {
			fmt.Printf("[agent] report error: %v\n", err)
			continue
		}

		drainMailbox(client, base, deviceID, collector)
	}
}

// drainMailbox consume-polls until the server answers 204, applying each
// delivered command to the collector. Commands arrive oldest first, so a
// newer fan setting always lands after the stale one it supersedes.
func drainMailbox(client *http.Client, base, deviceID string, collector *Collector) {
	for {
		resp, err := client.Get(base + "/api/device-message/" + deviceID)
		if err != nil {
			fmt.Printf("[agent] poll error: %v\n", err)
			return
		}

		if resp.StatusCode == http.StatusNoContent {
			resp.Body.Close()
			return
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			fmt.Printf("[agent] poll: server returned %d\n", resp.StatusCode)
			return
		}

		var cmd commandBody
		err = json.NewDecoder(resp.Body).Decode(&cmd)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("[agent] poll decode error: %v\n", err)
			return
		}

		if collector.Apply(cmd.Params) {
			fmt.Printf("[agent] applied command %s: fan=%.0f mode=%s\n",
				cmd.ID, collector.Fan(), collector.Mode())
		} else {
			fmt.Printf("[agent] command %s had no recognized params\n", cmd.ID)
		}
	}
}

// postJSON sends v as an HTTP POST with a JSON body.
func postJSON(client *http.Client, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
