// Package server provides the PicoRelay Gin-based REST API.
// One engine serves everything: device ingest and mailbox polling, the
// dashboard read endpoints, health and Prometheus metrics.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jkoivu/picorelay/internal/models"
	"gorm.io/datatypes"
)

// App bundles the per-process live state and metrics that handlers need.
// Construct one in main (or per test) and register it on an engine; the
// durable stores stay behind the package-level DB.
type App struct {
	Live    *LiveState
	Metrics *Metrics
}

// NewApp wires an App around the given live state.
func NewApp(live *LiveState) *App {
	return &App{Live: live, Metrics: NewMetrics(live)}
}

// RegisterRoutes wires up the API on the given engine.
//
//	Devices:   POST /api/ingest, GET /api/device-message/:device_id
//	Dashboard: GET /api/data, /api/live-devices, /api/db-data,
//	           POST /api/device-message
//	Ops:       GET /health, GET /metrics
func (a *App) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/ingest", a.handleIngest)
		api.GET("/data", a.handleLiveData)
		api.GET("/live-devices", a.handleLiveDevices)
		api.GET("/db-data", a.handleHistory)
		api.POST("/device-message", a.handleEnqueueCommand)
		api.GET("/device-message/:device_id", a.handlePollCommand)
	}

	r.GET("/health", a.handleHealth)
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// handleIngest accepts a reading from a Pico node.
//
//	POST /api/ingest
//	Body: { "device_id": "pico-attic", "temp": 21.4, "fan": 40, "mode": "auto" }
//
// Live state is updated before the durable write, so a storage outage
// degrades history but not the live dashboard.
func (a *App) handleIngest(c *gin.Context) {
	var body struct {
		DeviceID string   `json:"device_id" binding:"required"`
		Temp     *float64 `json:"temp" binding:"required"`
		Fan      float64  `json:"fan"`
		Mode     *string  `json:"mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		a.Metrics.ReadingsRejected.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id and numeric temp required"})
		return
	}

	now := time.Now()
	reading := models.Reading{
		DeviceID:   body.DeviceID,
		Temp:       *body.Temp,
		Fan:        body.Fan,
		Mode:       body.Mode,
		ReportedAt: now,
	}

	a.Live.Record(reading, now)
	a.Metrics.ReadingsIngested.Inc()

	if err := SaveReading(&reading); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// handleLiveData returns the ring of recent readings, oldest first.
func (a *App) handleLiveData(c *gin.Context) {
	c.JSON(http.StatusOK, a.Live.RingSnapshot())
}

// handleLiveDevices returns all devices within the presence TTL,
// most recently seen first.
func (a *App) handleLiveDevices(c *gin.Context) {
	c.JSON(http.StatusOK, a.Live.ListLive(time.Now()))
}

// handleHistory returns durable history, oldest first in the response.
//
//	GET /api/db-data?limit=50&device_id=pico-attic
func (a *App) handleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	readings, err := RecentReadings(limit, c.Query("device_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, readings)
}

// handleEnqueueCommand queues a dashboard command for a device.
//
//	POST /api/device-message
//	Body: { "device_id": "pico-attic", "params": { "fan": 80 } }
func (a *App) handleEnqueueCommand(c *gin.Context) {
	var body struct {
		DeviceID string          `json:"device_id" binding:"required"`
		Params   json.RawMessage `json:"params" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id and params required"})
		return
	}

	cmd, err := EnqueueCommand(body.DeviceID, datatypes.JSON(body.Params), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.Metrics.CommandsEnqueued.Inc()
	c.JSON(http.StatusCreated, gin.H{"status": "queued", "id": cmd.CommandID})
}

// handlePollCommand serves device mailbox polls. The default is a
// consume-poll; ?peek=1 returns the entry without marking it delivered.
// An empty mailbox is 204, not an error.
//
//	GET /api/device-message/:device_id?peek=1
func (a *App) handlePollCommand(c *gin.Context) {
	deviceID := c.Param("device_id")
	peek := c.Query("peek") == "1"

	cmd, err := NextCommand(deviceID, !peek)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cmd == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if !peek {
		a.Metrics.CommandsDelivered.Inc()
	}
	c.JSON(http.StatusOK, cmd)
}

// handleHealth reports liveness plus a few cheap diagnostics.
func (a *App) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"time":         time.Now().UTC(),
		"live_devices": a.Live.LiveCount(),
		"ring_len":     a.Live.RingLen(),
	})
}
