// Package config holds the settings for both modes. Defaults come from the
// environment (DIRBEAM_* variables) and flags override them.
package config

import (
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultChunkSize     = 64 * 1024
	DefaultParallelFiles = 8
	DefaultQueueCapacity = 32

	minChunkSize = 4 * 1024
	maxChunkSize = 8 * 1024 * 1024
)

// Sender configures the transmitting side.
type Sender struct {
	To   string
	From string

	LogLevel      string `env:"DIRBEAM_LOG_LEVEL"`
	ChunkSize     int    `env:"DIRBEAM_CHUNK_SIZE"`
	ParallelFiles int    `env:"DIRBEAM_PARALLEL_FILES"`
	QueueCapacity int    `env:"DIRBEAM_QUEUE_CAPACITY"`
}

// Receiver configures the listening side.
type Receiver struct {
	Port      int
	OutputDir string

	LogLevel      string `env:"DIRBEAM_LOG_LEVEL"`
	QueueCapacity int    `env:"DIRBEAM_QUEUE_CAPACITY"`
}

// SenderDefaults returns a sender config seeded with built-in defaults and
// overlaid with the environment.
func SenderDefaults() (Sender, error) {
	cfg := Sender{
		LogLevel:      "info",
		ChunkSize:     DefaultChunkSize,
		ParallelFiles: DefaultParallelFiles,
		QueueCapacity: DefaultQueueCapacity,
	}
	if err := env.Parse(&cfg); err != nil {
		return Sender{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// ReceiverDefaults returns a receiver config seeded with built-in defaults
// and overlaid with the environment.
func ReceiverDefaults() (Receiver, error) {
	cfg := Receiver{
		LogLevel:      "info",
		QueueCapacity: DefaultQueueCapacity,
	}
	if err := env.Parse(&cfg); err != nil {
		return Receiver{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Normalize clamps tunables into their supported ranges.
func (c *Sender) Normalize() {
	if c.ChunkSize < minChunkSize {
		c.ChunkSize = minChunkSize
	}
	if c.ChunkSize > maxChunkSize {
		c.ChunkSize = maxChunkSize
	}
	if c.ParallelFiles < 1 {
		c.ParallelFiles = 1
	}
	if c.ParallelFiles > 64 {
		c.ParallelFiles = 64
	}
	if c.QueueCapacity < 1 {
		c.QueueCapacity = 1
	}
	if c.QueueCapacity > 1024 {
		c.QueueCapacity = 1024
	}
}

// Validate checks the sender's required settings.
func (c Sender) Validate() error {
	if c.To == "" {
		return fmt.Errorf("--to is required")
	}
	u, err := url.Parse(c.To)
	if err != nil {
		return fmt.Errorf("invalid --to address: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("--to must be a ws:// or wss:// URL, got %q", c.To)
	}
	if c.From == "" {
		return fmt.Errorf("--from is required")
	}
	return nil
}

// Normalize clamps tunables into their supported ranges.
func (c *Receiver) Normalize() {
	if c.QueueCapacity < 1 {
		c.QueueCapacity = 1
	}
	if c.QueueCapacity > 1024 {
		c.QueueCapacity = 1024
	}
}

// Validate checks the receiver's required settings.
func (c Receiver) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("--port must be in 1..65535, got %d", c.Port)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("--output-dir is required")
	}
	return nil
}
