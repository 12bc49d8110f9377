package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/reliability"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// ArchiveLister lists uploaded report archives.
type ArchiveLister interface {
	ListArchives(ctx context.Context) ([]reliability.ArchiveInfo, error)
}

// SystemHandlers serves status, database, disk and job endpoints.
type SystemHandlers struct {
	databases map[string]*database.DB
	dataDir   string
	scheduler *scheduler.Scheduler
	jobs      map[string]scheduler.Job
	archives  ArchiveLister
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers. archives may be nil.
func NewSystemHandlers(
	databases map[string]*database.DB,
	dataDir string,
	sched *scheduler.Scheduler,
	jobs []scheduler.Job,
	archives ArchiveLister,
	log zerolog.Logger,
) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, job := range jobs {
		if job != nil {
			byName[job.Name()] = job
		}
	}
	return &SystemHandlers{
		databases: databases,
		dataDir:   dataDir,
		scheduler: sched,
		jobs:      byName,
		archives:  archives,
		startedAt: time.Now(),
		log:       log.With().Str("component", "system_handlers").Logger(),
	}
}

// SystemStatusResponse is the body of GET /api/system/status.
type SystemStatusResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	CPUPercent    float64  `json:"cpu_percent"`
	MemoryPercent float64  `json:"memory_percent"`
	Goroutines    int      `json:"goroutines"`
	ScheduledJobs []string `json:"scheduled_jobs"`
}

// DBInfo describes one database file.
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// DatabaseStatsResponse is the body of GET /api/system/database/stats.
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DiskUsageResponse is the body of GET /api/system/disk.
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	FreeMB      float64 `json:"free_mb"`
	TotalMB     float64 `json:"total_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// JobStatus is one entry of GET /api/system/jobs.
type JobStatus struct {
	Name      string `json:"name"`
	Scheduled bool   `json:"scheduled"`
}

// RegisterRoutes mounts the system routes on r.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/disk", h.HandleDiskUsage)
		r.Get("/jobs", h.HandleJobsStatus)
		r.Post("/jobs/{name}", h.HandleTriggerJob)
		r.Get("/archives", h.HandleListArchives)
	})
}

// HandleSystemStatus returns process and host statistics
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	scheduled := []string{}
	if h.scheduler != nil {
		scheduled = h.scheduler.Jobs()
		sort.Strings(scheduled)
	}

	h.writeJSON(w, http.StatusOK, SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		ScheduledJobs: scheduled,
	})
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, name := range sortedDatabaseNames(h.databases) {
		db := h.databases[name]
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}
		info := DBInfo{
			Name:      name,
			Path:      db.Path(),
			SizeMB:    toMB(stats.SizeBytes),
			WALSizeMB: toMB(stats.WALSizeBytes),
			PageCount: stats.PageCount,
		}
		response.TotalSizeMB += info.SizeMB + info.WALSizeMB
		response.Databases = append(response.Databases, info)
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
	}
	if usage, err := disk.Usage(h.dataDir); err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
	} else {
		response.FreeMB = toMB(int64(usage.Free))
		response.TotalMB = toMB(int64(usage.Total))
		response.UsedPercent = usage.UsedPercent
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus lists the known jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	scheduled := map[string]bool{}
	if h.scheduler != nil {
		for _, name := range h.scheduler.Jobs() {
			scheduled[name] = true
		}
	}

	jobs := make([]JobStatus, 0, len(h.jobs))
	for name := range h.jobs {
		jobs = append(jobs, JobStatus{Name: name, Scheduled: scheduled[name]})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// HandleTriggerJob runs a job immediately and waits for it
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "unknown job " + name})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job run triggered")

	var err error
	if h.scheduler != nil {
		err = h.scheduler.RunNow(job)
	} else {
		err = job.Run()
	}
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": name + " completed"})
}

// HandleListArchives lists uploaded report archives
func (h *SystemHandlers) HandleListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "report archiving is disabled"})
		return
	}

	archives, err := h.archives.ListArchives(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list archives")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"archives": archives})
}

// checkDatabases runs a quick integrity check on every database.
func (h *SystemHandlers) checkDatabases(ctx context.Context) map[string]string {
	result := make(map[string]string, len(h.databases))
	for _, name := range sortedDatabaseNames(h.databases) {
		if err := h.databases[name].QuickCheck(ctx); err != nil {
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}
	return result
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
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
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return toMB(totalSize)
}

// getSystemStats returns CPU and RAM usage percentages, sampling CPU over 100ms.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
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

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func sortedDatabaseNames(databases map[string]*database.DB) []string {
	names := make([]string, 0, len(databases))
	for name, db := range databases {
		if db != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func toMB(bytes int64) float64 {
	return float64(bytes) / 1024 / 1024
}
