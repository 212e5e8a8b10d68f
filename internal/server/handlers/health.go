package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	catalog *catalogmodule.Catalog
	plugins PluginDirectory
	db      Pinger
	started time.Time
}

// NewHealthHandler creates a health handler. Nil dependencies are skipped.
func NewHealthHandler(catalog *catalogmodule.Catalog, plugins PluginDirectory, db Pinger) *HealthHandler {
	return &HealthHandler{catalog: catalog, plugins: plugins, db: db, started: time.Now()}
}

// Health returns 200 while the database answers, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status":     "ok",
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
	}

	if h.catalog != nil {
		body["catalog"] = gin.H{"state": h.catalog.State(), "generation": h.catalog.Generation()}
	}
	if h.plugins != nil {
		body["plugins"] = len(h.plugins.Descriptors())
	}
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = gin.H{"ok": false, "error": err.Error()}
		} else {
			body["database"] = gin.H{"ok": true}
		}
	}
	body["process"] = processStats(ctx)

	c.JSON(status, body)
}

// processStats collects host memory and process figures. Unavailable values
// are left out.
func processStats(ctx context.Context) gin.H {
	stats := gin.H{}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats["system_memory_used_percent"] = vm.UsedPercent
		stats["system_memory_available"] = vm.Available
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return stats
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
		stats["rss"] = info.RSS
	}
	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats["cpu_percent"] = pct
	}
	if n, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats["threads"] = n
	}
	return stats
}
