package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/config"
	"github.com/Raikerian/go-tdmmix/internal/echocan"
	"github.com/Raikerian/go-tdmmix/internal/mixer"
	"github.com/Raikerian/go-tdmmix/internal/span"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

var (
	mixTicks      int
	mixRecordConf int
	mixRecordFile string
)

var mixCmd = &cobra.Command{
	Use:   "mix",
	Short: "Run the conference plan offline",
	Long: `Attach the configured spans, apply the conference plan and run ticks
back to back.

Without --ticks the run lasts until every non-looping WAV input has been
played. WAV spans with an output write their recording when the run ends.
--record-conf adds a pseudo channel listening to one conference and writes
what it hears to --record.

Examples:
  tdmsim -c bridge.yaml mix
  tdmsim -c bridge.yaml mix --ticks 5000 --record-conf 1 --record conf1.wav`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		return runMix(cmd.Context(), cfg, logger)
	},
}

func init() {
	mixCmd.Flags().IntVarP(&mixTicks, "ticks", "n", 0, "number of ticks to run (0: until WAV inputs end)")
	mixCmd.Flags().IntVar(&mixRecordConf, "record-conf", 0, "conference to record through a pseudo channel")
	mixCmd.Flags().StringVarP(&mixRecordFile, "record", "o", "", "output file for --record-conf")
}

// maxOfflineTicks bounds a run whose length comes from the inputs.
const maxOfflineTicks = 24 * 60 * 60 * 1000

func runMix(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if mixRecordConf != 0 && mixRecordFile == "" {
		return errors.New("--record-conf needs --record")
	}
	params, err := mixer.ParamsFromConfig(cfg)
	if err != nil {
		return err
	}
	m, err := mixer.New(params, echocan.NewDefaultRegistry(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = m.Stop() }()

	var inputs []*span.WAV
	for _, sc := range cfg.Spans {
		li, err := span.New(sc, logger)
		if err != nil {
			return err
		}
		law, err := audio.ParseLaw(sc.Law)
		if err != nil {
			return err
		}
		if _, err := m.AddSpan(li, law); err != nil {
			_ = li.Close()
			return err
		}
		if w, ok := li.(*span.WAV); ok && sc.Input != "" && !sc.Loop {
			inputs = append(inputs, w)
		}
	}
	if err := m.ApplyPlan(cfg.Conferences); err != nil {
		return err
	}
	if mixTicks == 0 && len(inputs) == 0 {
		return errors.New("--ticks is required when no WAV input bounds the run")
	}

	var rec *recorder
	if mixRecordConf != 0 {
		if rec, err = newRecorder(m, mixRecordConf); err != nil {
			return err
		}
	}

	start := time.Now()
	n := 0
	for ; n < maxOfflineTicks; n++ {
		if mixTicks > 0 && n >= mixTicks {
			break
		}
		if mixTicks == 0 && allDone(inputs) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		m.Tick()
		if rec != nil {
			if err := rec.drain(ctx); err != nil {
				return err
			}
		}
	}

	if rec != nil {
		rec.ch.FlushRead()
		if err := rec.drain(ctx); err != nil {
			return err
		}
	}

	if err := m.Stop(); err != nil {
		return fmt.Errorf("failed to finish spans: %w", err)
	}
	if rec != nil {
		if err := rec.save(mixRecordFile); err != nil {
			return err
		}
	}

	audioTime := time.Duration(n) * time.Second * audio.ChunkSize / audio.SampleRate
	fmt.Printf("Mixed %s of audio in %d ticks (%s wall clock), %d conferences\n",
		audioTime, n, time.Since(start).Round(time.Millisecond), m.Conferences())
	return nil
}

func allDone(inputs []*span.WAV) bool {
	for _, w := range inputs {
		if !w.Done() {
			return false
		}
	}
	return true
}

// recorder is a pseudo channel listening to one conference in linear mode.
type recorder struct {
	ch      *mixer.Channel
	buf     []byte
	samples []int
	lin     []int16
}

func newRecorder(m *mixer.Mixer, conf int) (*recorder, error) {
	ch, err := m.OpenPseudo()
	if err != nil {
		return nil, err
	}
	num := ch.Number()
	if err := m.SetLinear(num, true); err != nil {
		return nil, err
	}
	if err := m.SetConf(num, mixer.ConfSpec{Number: conf, Mode: mixer.ConfConfMonitor}); err != nil {
		return nil, fmt.Errorf("failed to join conference %d: %w", conf, err)
	}
	bs, err := m.BlockSize(num)
	if err != nil {
		return nil, err
	}
	ch.SetNonBlock(true)
	return &recorder{
		ch:  ch,
		buf: make([]byte, bs*audio.LinearSampleBytes),
		lin: make([]int16, bs),
	}, nil
}

// drain takes every block the channel holds.
func (r *recorder) drain(ctx context.Context) error {
	for {
		n, err := r.ch.Read(ctx, r.buf)
		if errors.Is(err, mixer.ErrWouldBlock) {
			return nil
		}
		if err != nil {
			return err
		}
		k := audio.GetLinear(r.lin, r.buf[:n])
		for _, s := range r.lin[:k] {
			r.samples = append(r.samples, int(s))
		}
	}
}

func (r *recorder) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := span.WriteWAV(f, 1, r.samples); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
