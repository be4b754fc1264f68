package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorDim    = "\033[2m"
)

// ColorHandler is a console slog.Handler. Error lines are red, warnings
// yellow, debug dim, and Info lines about finished sync runs green; group
// names become dotted key prefixes.
type ColorHandler struct {
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	prefix string
	mu     *sync.Mutex
}

// NewColorHandler creates a handler writing directly to w. Only the Level
// option is honored.
func NewColorHandler(w io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	level := slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level.Level()
	}
	return &ColorHandler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled implements slog.Handler.
func (h *ColorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *ColorHandler) color(r slog.Record) string {
	switch {
	case r.Level >= slog.LevelError:
		return colorRed
	case r.Level >= slog.LevelWarn:
		return colorYellow
	case r.Level < slog.LevelInfo:
		return colorDim
	case strings.Contains(strings.ToLower(r.Message), "sync run"):
		return colorGreen
	default:
		return ""
	}
}

// Handle implements slog.Handler.
func (h *ColorHandler) Handle(ctx context.Context, r slog.Record) error {
	var line strings.Builder

	line.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&line, " %-5s ", r.Level.String())

	color := h.color(r)
	if color != "" {
		line.WriteString(color)
	}
	line.WriteString(r.Message)
	if color != "" {
		line.WriteString(colorReset)
	}

	for _, attr := range h.attrs {
		fmt.Fprintf(&line, " %s=%s", attr.Key, attr.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&line, " %s%s=%s", h.prefix, a.Key, a.Value.String())
		return true
	})
	line.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line.String())
	return err
}

// WithAttrs implements slog.Handler. Keys are qualified with the current
// group prefix at attach time.
func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
