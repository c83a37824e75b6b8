package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/handlegen"
	"github.com/viant/handlegen/service/checkpoint"
	"github.com/viant/handlegen/service/status"
	"github.com/viant/handlegen/service/weight"
)

func TestNewLogger(t *testing.T) {
	defaultLogger := slog.Default()
	defer slog.SetDefault(defaultLogger)

	root := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	logger, closeFn, err := newLogger(handlegen.LoggingConfig{Level: "debug", Format: "json"}, root, true, now)
	require.NoError(t, err)
	logger.Debug("hello", "batch", 3)
	closeFn()

	data, err := os.ReadFile(filepath.Join(root, LogDir, "run_20260304_050607.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"batch":3`)

	_, _, err = newLogger(handlegen.LoggingConfig{Format: "xml"}, root, false, now)
	assert.Error(t, err)
	_, _, err = newLogger(handlegen.LoggingConfig{Level: "loud"}, root, false, now)
	assert.Error(t, err)
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	report := status.Report{
		Checkpoint: checkpoint.State{CurrentBatch: 2, CurrentIndex: 7, TotalChecks: 1007},
		Stats:      weight.Stats{"LLDD": {Tries: 9, Successes: 2, BaseWeight: 1}},
		Weights:    []weight.Weighted{{Key: "LLDD", Weight: 0.3}},
		Pending:    1,
	}
	require.NoError(t, printStats(&buf, report))
	out := buf.String()
	assert.Contains(t, out, "LLDD")
	assert.Contains(t, out, "0.3000")
	assert.Contains(t, out, "1007")
}
