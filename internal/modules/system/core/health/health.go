// Package health serves liveness for load balancers and the operator
// endpoints for background jobs and native log files.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/pulse/internal/pkg/cron"
	"github.com/pulsetrack/pulse/internal/pkg/nativelog"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

const pingTimeout = 3 * time.Second

// Check probes one backing service.
type Check func(ctx context.Context) error

type logItem struct {
	Size     string `json:"size"`
	Filename string `json:"filename"`
	Index    int    `json:"index"`
	Created  int64  `json:"created"`
}

type Handler struct {
	checks map[string]Check
	sched  *cron.Scheduler
	logDir string
	now    func() time.Time
}

// NewHandler builds the handler. checks maps a component name ("database",
// "redis", "mongo") to its probe; components that are not configured are
// simply absent.
func NewHandler(checks map[string]Check, sched *cron.Scheduler, logDir string) *Handler {
	return &Handler{checks: checks, sched: sched, logDir: logDir, now: time.Now}
}

// RegisterRoutes mounts GET /health on rg and the cron and log endpoints on
// admin.
func (h *Handler) RegisterRoutes(rg, admin *gin.RouterGroup) {
	rg.GET("/health", h.health)

	cronGroup := admin.Group("/cron")
	{
		cronGroup.GET("", func(c *gin.Context) {
			response.OK(c, gin.H{"jobs": h.sched.List()})
		})

		cronGroup.POST("/run/:name", func(c *gin.Context) {
			if err := h.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, gin.H{"message": "job triggered"})
		})

		cronGroup.GET("/task/:name", func(c *gin.Context) {
			result, err := h.sched.GetTask(c.Param("name"))
			if err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, result)
		})
	}

	logGroup := admin.Group("/logs")
	{
		logGroup.GET("", h.listLogs)
		logGroup.GET("/:filename", h.readLog)
		logGroup.DELETE("/:filename", h.deleteLog)
	}
}

func (h *Handler) health(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	body := gin.H{}
	for _, name := range names {
		ok := h.checks[name](ctx) == nil
		body[name] = ok
		if !ok {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	body["status"] = status
	c.JSON(code, body)
}

func (h *Handler) listLogs(c *gin.Context) {
	entries, err := os.ReadDir(h.logDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			response.OK(c, []logItem{})
			return
		}
		response.InternalError(c, err)
		return
	}

	items := make([]logItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, logItem{
			Size:     formatByteSize(info.Size()),
			Filename: entry.Name(),
			Created:  info.ModTime().UnixMilli(),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Created == items[j].Created {
			return items[i].Filename > items[j].Filename
		}
		return items[i].Created > items[j].Created
	})
	for i := range items {
		items[i].Index = i
	}
	response.OK(c, items)
}

// logPath confines filename to the log directory.
func (h *Handler) logPath(c *gin.Context) (string, bool) {
	filename := filepath.Base(strings.TrimSpace(c.Param("filename")))
	if filename == "." || filename == string(filepath.Separator) || !strings.HasSuffix(filename, ".log") {
		response.BadRequest(c, "invalid log filename")
		return "", false
	}
	return filepath.Join(h.logDir, filename), true
}

func (h *Handler) readLog(c *gin.Context) {
	path, ok := h.logPath(c)
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		response.NotFoundMsg(c, "log file not exists")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// deleteLog removes an old log file. Today's file is still open for writing
// and is truncated instead.
func (h *Handler) deleteLog(c *gin.Context) {
	path, ok := h.logPath(c)
	if !ok {
		return
	}

	today := filepath.Join(h.logDir, nativelog.DailyFilename(h.now()))
	if filepath.Clean(path) == filepath.Clean(today) {
		if err := os.WriteFile(path, nil, 0o644); err != nil && !errors.Is(err, os.ErrNotExist) {
			response.InternalError(c, err)
			return
		}
	} else if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		response.InternalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func formatByteSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
