package recorder

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fc2dl/fc2dl/internal/config"
	"github.com/fc2dl/fc2dl/internal/observability"
	"github.com/fc2dl/fc2dl/internal/version"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPostProcessSkipsEmptyCapture(t *testing.T) {
	// A broadcast that disconnects before any fragment lands must not turn
	// into a failing exit; the empty capture is logged and removed.
	r := &Recorder{cfg: &config.Config{}, log: testLogger()}

	t.Run("missing file", func(t *testing.T) {
		var buf bytes.Buffer
		logger := observability.NewLoggerWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

		tsPath := filepath.Join(t.TempDir(), "missing.ts")
		err := r.postProcess(context.Background(), tsPath, TemplateVars{}, logger)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "no stream data was captured")
		assert.Contains(t, buf.String(), `"component":"recorder"`)
	})

	t.Run("empty file", func(t *testing.T) {
		tsPath := filepath.Join(t.TempDir(), "empty.ts")
		require.NoError(t, os.WriteFile(tsPath, nil, 0o644))

		err := r.postProcess(context.Background(), tsPath, TemplateVars{}, testLogger())
		require.NoError(t, err)
		_, statErr := os.Stat(tsPath)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestHTTPClientUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	cfg := &config.Config{HTTP: config.HTTPConfig{Timeout: 5 * time.Second}}
	r, err := New(cfg, "12345", testLogger())
	require.NoError(t, err)

	resp, err := r.hc.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, version.UserAgent(), got)
}
