package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raikerian/go-tdmmix/internal/chanbuf"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Span types.
const (
	SpanLoopback = "loopback"
	SpanWAV      = "wav"
)

// MixerConfig sizes the mixer.
type MixerConfig struct {
	MaxChannels    int    `yaml:"max_channels"`
	MaxConferences int    `yaml:"max_conferences"`
	MaxAliases     int    `yaml:"max_aliases"`
	MaxLinks       int    `yaml:"max_links"`
	Law            string `yaml:"law"`
	GainCacheSize  int    `yaml:"gain_cache_size"`
	EventQueue     int    `yaml:"event_queue"`
	EchoCanceller  string `yaml:"echo_canceller"`
	EchoTaps       int    `yaml:"echo_taps"`
}

// BuffersConfig holds the default application buffer geometry and limits.
type BuffersConfig struct {
	BlockSize    int    `yaml:"block_size"`
	Blocks       int    `yaml:"blocks"`
	MaxBlockSize int    `yaml:"max_block_size"`
	MaxSpace     int    `yaml:"max_space"`
	ReadPolicy   string `yaml:"read_policy"`
	WritePolicy  string `yaml:"write_policy"`
}

// SchedulerConfig controls the real-time tick driver.
type SchedulerConfig struct {
	Period             time.Duration `yaml:"period"`
	OverrunLogInterval time.Duration `yaml:"overrun_log_interval"`
}

// SpanConfig describes one line interface.
type SpanConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Channels int    `yaml:"channels"`
	Law      string `yaml:"law"`
	// WAV spans only.
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Loop   bool   `yaml:"loop"`
}

// ChannelConfig is the static configuration of one span channel.
type ChannelConfig struct {
	Channel       int      `yaml:"channel"`
	Number        int      `yaml:"number"`
	Mode          string   `yaml:"mode"`
	Flags         []string `yaml:"flags"`
	Muted         bool     `yaml:"muted"`
	Law           string   `yaml:"law"`
	RxGainDB      float64  `yaml:"rx_gain_db"`
	TxGainDB      float64  `yaml:"tx_gain_db"`
	EchoCanceller string   `yaml:"echo_canceller"`
	EchoTaps      int      `yaml:"echo_taps"`
}

// LinkConfig feeds one conference into another.
type LinkConfig struct {
	Src int `yaml:"src"`
	Dst int `yaml:"dst"`
}

// ConferencesConfig is the conference plan applied at startup.
type ConferencesConfig struct {
	Channels []ChannelConfig `yaml:"channels"`
	Links    []LinkConfig    `yaml:"links"`
}

// Config stores the application configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Mixer       MixerConfig       `yaml:"mixer"`
	Buffers     BuffersConfig     `yaml:"buffers"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Spans       []SpanConfig      `yaml:"spans"`
	Conferences ConferencesConfig `yaml:"conferences"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	m := &c.Mixer
	setDefault(&m.MaxChannels, 1024)
	setDefault(&m.MaxConferences, 1024)
	setDefault(&m.MaxAliases, 256)
	setDefault(&m.MaxLinks, 32)
	setDefault(&m.GainCacheSize, 64)
	setDefault(&m.EventQueue, 32)
	setDefault(&m.EchoTaps, 128)
	if m.Law == "" {
		m.Law = audio.LawMulaw.String()
	}
	if m.EchoCanceller == "" {
		m.EchoCanceller = "nlms"
	}

	b := &c.Buffers
	setDefault(&b.BlockSize, chanbuf.DefaultBlockSize)
	setDefault(&b.Blocks, chanbuf.DefaultBlocks)
	setDefault(&b.MaxBlockSize, chanbuf.DefaultMaxBlockSize)
	setDefault(&b.MaxSpace, chanbuf.DefaultMaxSpace)
	if b.ReadPolicy == "" {
		b.ReadPolicy = chanbuf.PolicyImmediate.String()
	}
	if b.WritePolicy == "" {
		b.WritePolicy = chanbuf.PolicyImmediate.String()
	}

	s := &c.Scheduler
	if s.Period == 0 {
		s.Period = time.Millisecond
	}
	if s.OverrunLogInterval == 0 {
		s.OverrunLogInterval = 10 * time.Second
	}

	for i := range c.Spans {
		sp := &c.Spans[i]
		if sp.Type == "" {
			sp.Type = SpanLoopback
		}
		if sp.Name == "" {
			sp.Name = fmt.Sprintf("span%d", i+1)
		}
	}
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level %q", c.LogLevel)
	}

	m := c.Mixer
	if m.MaxChannels < 1 || m.MaxConferences < 1 || m.MaxAliases < 1 || m.MaxLinks < 0 {
		return invalid("mixer bounds must be positive")
	}
	if m.MaxAliases > m.MaxConferences {
		return invalid("max_aliases %d exceeds max_conferences %d", m.MaxAliases, m.MaxConferences)
	}
	if _, err := audio.ParseLaw(m.Law); err != nil {
		return fmt.Errorf("%w: mixer.law: %w", ErrInvalidConfig, err)
	}

	b := c.Buffers
	limits := chanbuf.Limits{MaxBlockSize: b.MaxBlockSize, MaxSpace: b.MaxSpace}
	if err := limits.Validate(b.BlockSize, b.Blocks); err != nil {
		return fmt.Errorf("%w: buffers: %w", ErrInvalidConfig, err)
	}
	if _, err := chanbuf.ParsePolicy(b.ReadPolicy); err != nil {
		return fmt.Errorf("%w: buffers.read_policy: %w", ErrInvalidConfig, err)
	}
	if _, err := chanbuf.ParsePolicy(b.WritePolicy); err != nil {
		return fmt.Errorf("%w: buffers.write_policy: %w", ErrInvalidConfig, err)
	}

	if c.Scheduler.Period <= 0 {
		return invalid("scheduler.period must be positive")
	}

	names := make(map[string]bool, len(c.Spans))
	for i, sp := range c.Spans {
		if names[sp.Name] {
			return invalid("spans[%d]: duplicate name %q", i, sp.Name)
		}
		names[sp.Name] = true
		if _, err := audio.ParseLaw(sp.Law); err != nil {
			return fmt.Errorf("%w: spans[%d].law: %w", ErrInvalidConfig, i, err)
		}
		switch sp.Type {
		case SpanLoopback:
			if sp.Channels < 1 {
				return invalid("spans[%d]: loopback needs channels", i)
			}
		case SpanWAV:
			if sp.Input == "" && sp.Output == "" {
				return invalid("spans[%d]: wav span needs input or output", i)
			}
			if sp.Input == "" && sp.Channels < 1 {
				return invalid("spans[%d]: wav span without input needs channels", i)
			}
		default:
			return invalid("spans[%d]: unknown type %q", i, sp.Type)
		}
	}

	for i, ch := range c.Conferences.Channels {
		if ch.Channel < 1 || ch.Channel > m.MaxChannels {
			return invalid("conferences.channels[%d]: channel %d out of range", i, ch.Channel)
		}
		if _, err := audio.ParseLaw(ch.Law); err != nil {
			return fmt.Errorf("%w: conferences.channels[%d].law: %w", ErrInvalidConfig, i, err)
		}
	}
	if len(c.Conferences.Links) > m.MaxLinks {
		return invalid("%d links exceed max_links %d", len(c.Conferences.Links), m.MaxLinks)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// LoadConfig loads the configuration from the given file path.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
