package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks writes every event to a charm logger. Routine events are logged
// at debug level, failures at warn or error.
type LogHooks struct {
	logger *log.Logger
}

// NewLogHooks returns hooks that log to logger. A nil logger uses the
// charm default logger.
func NewLogHooks(logger *log.Logger) *LogHooks {
	if logger == nil {
		logger = log.Default()
	}
	return &LogHooks{logger: logger}
}

func (h *LogHooks) OnRenderStart(_ context.Context, style string, inputBytes int) {
	h.logger.Debug("render start", "style", style, "bytes", inputBytes)
}

func (h *LogHooks) OnRenderComplete(_ context.Context, style string, width, height int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("render failed", "style", style, "duration", d, "err", err)
		return
	}
	h.logger.Debug("render done", "style", style, "size", sizeString(width, height), "duration", d)
}

func (h *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *LogHooks) OnRequest(_ context.Context, method, path string) {
	h.logger.Debug("request", "method", method, "path", path)
}

func (h *LogHooks) OnResponse(_ context.Context, method, path string, status int, d time.Duration) {
	h.logger.Info("response", "method", method, "path", path, "status", status, "duration", d)
}

func (h *LogHooks) OnError(_ context.Context, method, path string, err error) {
	h.logger.Error("request failed", "method", method, "path", path, "err", err)
}

func sizeString(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}

var (
	_ RenderHooks = (*LogHooks)(nil)
	_ CacheHooks  = (*LogHooks)(nil)
	_ HTTPHooks   = (*LogHooks)(nil)
)
