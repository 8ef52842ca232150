package mixer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/chanbuf"
	"github.com/Raikerian/go-tdmmix/internal/config"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

// ParamsFromConfig derives mixer sizing from the configuration.
func ParamsFromConfig(cfg *config.Config) (Params, error) {
	p := DefaultParams()

	law, err := audio.ParseLaw(cfg.Mixer.Law)
	if err != nil {
		return p, err
	}
	if law != audio.LawDefault {
		p.DefaultLaw = law
	}
	readPolicy, err := chanbuf.ParsePolicy(cfg.Buffers.ReadPolicy)
	if err != nil {
		return p, err
	}
	writePolicy, err := chanbuf.ParsePolicy(cfg.Buffers.WritePolicy)
	if err != nil {
		return p, err
	}

	p.MaxChannels = cfg.Mixer.MaxChannels
	p.MaxConferences = cfg.Mixer.MaxConferences
	p.MaxAliases = cfg.Mixer.MaxAliases
	p.MaxLinks = cfg.Mixer.MaxLinks
	p.GainCacheSize = cfg.Mixer.GainCacheSize
	p.EventQueue = cfg.Mixer.EventQueue
	p.EchoCanceller = cfg.Mixer.EchoCanceller
	p.EchoTaps = cfg.Mixer.EchoTaps
	p.Limits.MaxBlockSize = cfg.Buffers.MaxBlockSize
	p.Limits.MaxSpace = cfg.Buffers.MaxSpace
	p.BlockSize = cfg.Buffers.BlockSize
	p.Blocks = cfg.Buffers.Blocks
	p.ReadPolicy = readPolicy
	p.WritePolicy = writePolicy
	return p, nil
}

// ApplyPlan configures span channels and conference links from the static
// plan. It stops at the first failing entry.
func (m *Mixer) ApplyPlan(plan config.ConferencesConfig) error {
	for i, ch := range plan.Channels {
		if err := m.applyChannel(ch); err != nil {
			return fmt.Errorf("conference plan entry %d (channel %d): %w", i, ch.Channel, err)
		}
	}
	for _, l := range plan.Links {
		if err := m.ConfLink(l.Src, l.Dst); err != nil {
			return fmt.Errorf("conference link %d -> %d: %w", l.Src, l.Dst, err)
		}
	}

	m.logger.Info("Conference plan applied",
		zap.Int("channels", len(plan.Channels)),
		zap.Int("links", len(plan.Links)),
		zap.Int("conferences", m.Conferences()))
	return nil
}

func (m *Mixer) applyChannel(ch config.ChannelConfig) error {
	mode, err := ParseConfMode(ch.Mode)
	if err != nil {
		return err
	}
	flags, err := ParseConfFlags(ch.Flags)
	if err != nil {
		return err
	}
	law, err := audio.ParseLaw(ch.Law)
	if err != nil {
		return err
	}

	if err := m.SetLaw(ch.Channel, law); err != nil {
		return err
	}
	if ch.RxGainDB != 0 || ch.TxGainDB != 0 {
		if err := m.SetGainDB(ch.Channel, ch.RxGainDB, ch.TxGainDB); err != nil {
			return err
		}
	}
	if ch.EchoCanceller != "" {
		if err := m.SetEchoCanceller(ch.Channel, ch.EchoCanceller, ch.EchoTaps); err != nil {
			return err
		}
	}
	if err := m.SetConf(ch.Channel, ConfSpec{Number: ch.Number, Mode: mode, Flags: flags}); err != nil {
		return err
	}
	return m.SetConfMute(ch.Channel, ch.Muted)
}
