package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorHandlerLevels(t *testing.T) {
	tests := []struct {
		name     string
		log      func(l *slog.Logger)
		message  string
		wantCode string
	}{
		{
			name:     "error is red",
			log:      func(l *slog.Logger) { l.Error("credential verification failed") },
			message:  "credential verification failed",
			wantCode: colorRed,
		},
		{
			name:     "warn is yellow",
			log:      func(l *slog.Logger) { l.Warn("webhook broadcast truncated") },
			message:  "webhook broadcast truncated",
			wantCode: colorYellow,
		},
		{
			name:     "info is plain",
			log:      func(l *slog.Logger) { l.Info("resolved person") },
			message:  "resolved person",
			wantCode: "",
		},
		{
			name:     "finished run is green",
			log:      func(l *slog.Logger) { l.Info("sync run finished") },
			message:  "sync run finished",
			wantCode: colorGreen,
		},
		{
			name:     "debug is dim",
			log:      func(l *slog.Logger) { l.Debug("cache miss") },
			message:  "cache miss",
			wantCode: colorDim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewLogger(&buf, slog.LevelDebug))

			out := buf.String()
			require.Contains(t, out, tt.message)
			if tt.wantCode == "" {
				assert.NotContains(t, out, colorReset)
			} else {
				assert.Contains(t, out, tt.wantCode)
				assert.Contains(t, out, colorReset)
			}
		})
	}
}

func TestColorHandlerRendersAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelInfo)

	log.Info("sync run finished", "connection_id", "c1", "created", 3)

	out := buf.String()
	assert.Contains(t, out, "connection_id=c1")
	assert.Contains(t, out, "created=3")
}

func TestColorHandlerWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelInfo).With("provider", "nylas").WithGroup("run")

	log.Info("listing items", "batch", 50)

	out := buf.String()
	assert.Contains(t, out, "provider=nylas")
	assert.Contains(t, out, "run.batch=50")
}

func TestColorHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelWarn)

	log.Info("quiet")
	assert.Empty(t, buf.String())

	log.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}
