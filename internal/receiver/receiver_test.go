package receiver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dirbeam/dirbeam/internal/config"
	"github.com/dirbeam/dirbeam/pkg/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNew_SecondReceiverOnSameDirFails(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Receiver{Port: 0, OutputDir: dir, QueueCapacity: 32}

	first, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer first.listener.Close()
	defer func() { _ = removeSentinel(first.sentinel) }()

	_, err = New(cfg, quietLogger())
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestNew_ReservedPortRefusedAndSentinelRemoved(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Receiver{Port: 80, OutputDir: dir, QueueCapacity: 32}

	_, err := New(cfg, quietLogger())
	require.ErrorIs(t, err, ErrBind)

	// Startup unwound: the sentinel must not linger.
	_, err = os.Stat(filepath.Join(dir, protocol.SentinelName))
	require.True(t, os.IsNotExist(err))
}

func TestNew_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet", "there")
	cfg := config.Receiver{Port: 0, OutputDir: dir, QueueCapacity: 32}

	r, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer r.listener.Close()
	defer func() { _ = removeSentinel(r.sentinel) }()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestRun_ShutdownRemovesSentinel(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Receiver{Port: 0, OutputDir: dir, QueueCapacity: 32}

	r, err := New(cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Give the accept loop a moment, then interrupt.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not shut down")
	}

	_, err = os.Stat(filepath.Join(dir, protocol.SentinelName))
	require.True(t, os.IsNotExist(err))
}
