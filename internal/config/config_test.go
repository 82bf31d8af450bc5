package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSenderDefaults(t *testing.T) {
	cfg, err := SenderDefaults()
	require.NoError(t, err)
	require.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	require.Equal(t, DefaultParallelFiles, cfg.ParallelFiles)
	require.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestSenderDefaults_EnvOverrides(t *testing.T) {
	t.Setenv("DIRBEAM_LOG_LEVEL", "debug")
	t.Setenv("DIRBEAM_CHUNK_SIZE", "8192")
	t.Setenv("DIRBEAM_PARALLEL_FILES", "2")

	cfg, err := SenderDefaults()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 8192, cfg.ChunkSize)
	require.Equal(t, 2, cfg.ParallelFiles)
}

func TestSenderDefaults_BadEnv(t *testing.T) {
	t.Setenv("DIRBEAM_CHUNK_SIZE", "lots")
	_, err := SenderDefaults()
	require.Error(t, err)
}

func TestSenderNormalize_Clamps(t *testing.T) {
	cfg := Sender{ChunkSize: 1, ParallelFiles: 0, QueueCapacity: 100000}
	cfg.Normalize()
	require.Equal(t, minChunkSize, cfg.ChunkSize)
	require.Equal(t, 1, cfg.ParallelFiles)
	require.Equal(t, 1024, cfg.QueueCapacity)

	cfg = Sender{ChunkSize: 1 << 30, ParallelFiles: 1000, QueueCapacity: 0}
	cfg.Normalize()
	require.Equal(t, maxChunkSize, cfg.ChunkSize)
	require.Equal(t, 64, cfg.ParallelFiles)
	require.Equal(t, 1, cfg.QueueCapacity)
}

func TestSenderValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Sender
		wantErr bool
	}{
		{"valid ws", Sender{To: "ws://host:9000", From: "/src"}, false},
		{"valid wss", Sender{To: "wss://host:9000/path", From: "/src"}, false},
		{"missing to", Sender{From: "/src"}, true},
		{"missing from", Sender{To: "ws://host:9000"}, true},
		{"http scheme", Sender{To: "http://host:9000", From: "/src"}, true},
		{"garbage url", Sender{To: "://", From: "/src"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestReceiverValidate(t *testing.T) {
	require.NoError(t, Receiver{Port: 9000, OutputDir: "/out"}.Validate())
	require.Error(t, Receiver{Port: 0, OutputDir: "/out"}.Validate())
	require.Error(t, Receiver{Port: 70000, OutputDir: "/out"}.Validate())
	require.Error(t, Receiver{Port: 9000}.Validate())
}
