// Package span provides line interfaces that feed the mixer without
// telephony hardware.
package span

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/config"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported wav format")
	ErrNotWavFile        = errors.New("not a wav file")
	ErrChannelCount      = errors.New("chunk count does not match span channels")
	ErrUnknownType       = errors.New("unknown span type")
)

// Span is a line interface the mixer can attach.
type Span interface {
	Name() string
	Channels() int
	Receive(rx [][]byte) error
	Transmit(tx [][]byte) error
	Close() error
}

// New builds a span from its configuration.
func New(cfg config.SpanConfig, logger *zap.Logger) (Span, error) {
	id, err := audio.ParseLaw(cfg.Law)
	if err != nil {
		return nil, err
	}
	if id == audio.LawDefault {
		id = audio.LawMulaw
	}
	law, err := audio.LawByID(id)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case config.SpanLoopback, "":
		return NewLoopback(cfg.Name, cfg.Channels, law), nil
	case config.SpanWAV:
		return OpenWAV(WAVOptions{
			Name:     cfg.Name,
			Input:    cfg.Input,
			Output:   cfg.Output,
			Channels: cfg.Channels,
			Loop:     cfg.Loop,
			Law:      law,
		}, logger)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
}

func checkChunks(chunks [][]byte, channels int) error {
	if len(chunks) != channels {
		return fmt.Errorf("%w: got %d, want %d", ErrChannelCount, len(chunks), channels)
	}
	return nil
}
