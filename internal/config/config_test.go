package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-tdmmix/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
mixer:
  law: alaw
  max_aliases: 8
buffers:
  block_size: 160
  blocks: 4
  read_policy: half_full
scheduler:
  period: 2ms
spans:
  - type: loopback
    channels: 4
  - name: rec
    type: wav
    output: out.wav
    channels: 2
conferences:
  channels:
    - channel: 1
      number: 5
      mode: conf
    - channel: 2
      number: 5
      mode: conf
      flags: [talker]
  links:
    - {src: 5, dst: 6}
`)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "alaw", cfg.Mixer.Law)
	assert.Equal(t, 8, cfg.Mixer.MaxAliases)
	assert.Equal(t, 1024, cfg.Mixer.MaxConferences)
	assert.Equal(t, 160, cfg.Buffers.BlockSize)
	assert.Equal(t, "half_full", cfg.Buffers.ReadPolicy)
	assert.Equal(t, "immediate", cfg.Buffers.WritePolicy)
	assert.Equal(t, 2*time.Millisecond, cfg.Scheduler.Period)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.OverrunLogInterval)

	require.Len(t, cfg.Spans, 2)
	assert.Equal(t, "span1", cfg.Spans[0].Name)
	assert.Equal(t, "rec", cfg.Spans[1].Name)

	require.Len(t, cfg.Conferences.Channels, 2)
	assert.Equal(t, []string{"talker"}, cfg.Conferences.Channels[1].Flags)
	assert.Equal(t, []config.LinkConfig{{Src: 5, Dst: 6}}, cfg.Conferences.Links)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Millisecond, cfg.Scheduler.Period)
	assert.Equal(t, "mulaw", cfg.Mixer.Law)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"law", func(c *config.Config) { c.Mixer.Law = "slinear" }},
		{"block size", func(c *config.Config) { c.Buffers.BlockSize = 8 }},
		{"space", func(c *config.Config) { c.Buffers.BlockSize, c.Buffers.Blocks = 8192, 8 }},
		{"policy", func(c *config.Config) { c.Buffers.ReadPolicy = "eventually" }},
		{"aliases", func(c *config.Config) { c.Mixer.MaxAliases = 2048 }},
		{"span type", func(c *config.Config) {
			c.Spans = []config.SpanConfig{{Name: "x", Type: "t1", Channels: 24}}
		}},
		{"duplicate span", func(c *config.Config) {
			c.Spans = []config.SpanConfig{
				{Name: "x", Type: config.SpanLoopback, Channels: 1},
				{Name: "x", Type: config.SpanLoopback, Channels: 1},
			}
		}},
		{"wav without files", func(c *config.Config) {
			c.Spans = []config.SpanConfig{{Name: "w", Type: config.SpanWAV, Channels: 1}}
		}},
		{"channel range", func(c *config.Config) {
			c.Conferences.Channels = []config.ChannelConfig{{Channel: 0}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "mixer: [not, a, map]"))
	assert.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "log_level: verbose"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
