package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/brunocrt/crew-investment-agents/internal/database"
)

// SystemHandlers serves system monitoring endpoints
type SystemHandlers struct {
	log        zerolog.Logger
	dataDir    string
	analysesDB *database.DB
	cacheDB    *database.DB
	startTime  time.Time
}

// NewSystemHandlers creates system monitoring handlers
func NewSystemHandlers(log zerolog.Logger, dataDir string, analysesDB, cacheDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:        log.With().Str("handler", "system").Logger(),
		dataDir:    dataDir,
		analysesDB: analysesDB,
		cacheDB:    cacheDB,
		startTime:  time.Now(),
	}
}

// HandleSystemStatus returns CPU, memory and process statistics.
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.systemStats()

	h.writeJSON(w, map[string]interface{}{
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
		"goroutines":     runtime.NumGoroutine(),
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// HandleDatabaseStats returns row counts and file sizes for the databases.
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	var analyses, logLines int64
	if err := h.analysesDB.QueryRow("SELECT COUNT(*) FROM analyses").Scan(&analyses); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count analyses")
	}
	if err := h.analysesDB.QueryRow("SELECT COUNT(*) FROM analysis_logs").Scan(&logLines); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count log lines")
	}

	h.writeJSON(w, map[string]interface{}{
		"analyses":          analyses,
		"log_lines":         logLines,
		"analyses_db_mb":    fileSizeMB(h.analysesDB.Path()),
		"cache_db_mb":       fileSizeMB(h.cacheDB.Path()),
		"data_dir_total_mb": h.dirSizeMB(h.dataDir),
	})
}

// HandleDiskUsage returns disk usage of the data directory volume.
// GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get disk usage")
		http.Error(w, "Failed to get disk usage", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"path":         usage.Path,
		"total_gb":     float64(usage.Total) / 1024 / 1024 / 1024,
		"used_gb":      float64(usage.Used) / 1024 / 1024 / 1024,
		"free_gb":      float64(usage.Free) / 1024 / 1024 / 1024,
		"used_percent": usage.UsedPercent,
	})
}

// systemStats samples CPU and RAM usage percentages. The short CPU sample
// interval keeps the endpoint responsive for polling dashboards.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// dirSizeMB calculates the total size of a directory in MB
func (h *SystemHandlers) dirSizeMB(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

func fileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
