package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
)

func TestInstrument_ConsoleFormats(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	tests := []struct {
		format string
		want   string
	}{
		{format: "text", want: "msg=hello"},
		{format: "json", want: `"msg":"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			shutdown, err := instrument(context.Background(), Config{Level: slog.LevelInfo, Format: tt.format}, &buf)
			require.NoError(t, err)

			slog.Info("hello")
			slog.Debug("filtered")
			require.NoError(t, shutdown(context.Background()))

			assert.Contains(t, buf.String(), tt.want)
			assert.NotContains(t, buf.String(), "filtered")
		})
	}
}

func TestInstrument_UnknownFormat(t *testing.T) {
	_, err := instrument(context.Background(), Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestInstrument_StdoutExporter(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	shutdown, err := instrument(context.Background(), Config{
		Level:    slog.LevelInfo,
		Format:   "text",
		Exporter: ExporterStdout,
	}, &buf)
	require.NoError(t, err)

	slog.Warn("exported record", "attempt", 1)
	// Shutdown flushes the batch processor
	require.NoError(t, shutdown(context.Background()))

	// Once from the console handler, once from the exporter
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("exported record")))
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, log.SeverityDebug, severity(slog.LevelDebug).Severity())
	assert.Equal(t, log.SeverityInfo, severity(slog.LevelInfo).Severity())
	assert.Equal(t, log.SeverityWarn, severity(slog.LevelWarn).Severity())
	assert.Equal(t, log.SeverityError, severity(slog.LevelError).Severity())
}
