package span

import (
	"fmt"
	"io"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1

	// recordFlushFrames is how many transmitted frames are held before they
	// go through the encoder.
	recordFlushFrames = audio.SampleRate
)

// WAVOptions configures a WAV span.
type WAVOptions struct {
	Name     string
	Input    string // 8 kHz 16-bit PCM, one wav channel per span channel
	Output   string // recorded while running, one wav channel per span channel
	Channels int    // at least this many channels
	Loop     bool
	Law      *audio.Law
}

// WAV plays a wav file into the receive path and records the transmit path.
type WAV struct {
	name     string
	law      *audio.Law
	channels int
	logger   *zap.Logger

	mu       sync.Mutex
	in       []int // interleaved input samples
	inChans  int
	frame    int
	loop     bool
	output   string
	out      *os.File
	enc      *wav.Encoder
	pending  *goaudio.IntBuffer // interleaved transmitted samples, fixed capacity
	recorded int                // frames handed to the encoder
	closed   bool
}

// ReadWAV decodes an 8 kHz 16-bit PCM wav stream into interleaved samples.
func ReadWAV(r io.ReadSeeker) (samples []int, channels int, err error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, ErrNotWavFile
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding wav: %w", err)
	}
	if d.SampleRate != audio.SampleRate || d.BitDepth != wavBitDepth {
		return nil, 0, fmt.Errorf("%w: %d Hz %d bit", ErrUnsupportedFormat, d.SampleRate, d.BitDepth)
	}
	return buf.Data, int(d.NumChans), nil
}

// WriteWAV encodes interleaved samples as an 8 kHz 16-bit PCM wav stream.
func WriteWAV(w io.WriteSeeker, channels int, samples []int) error {
	e := wav.NewEncoder(w, audio.SampleRate, wavBitDepth, channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: audio.SampleRate},
		Data:           samples,
		SourceBitDepth: wavBitDepth,
	}
	if err := e.Write(buf); err != nil {
		return fmt.Errorf("encoding wav: %w", err)
	}
	return e.Close()
}

// OpenWAV creates a WAV span, decoding the input file up front.
func OpenWAV(opts WAVOptions, logger *zap.Logger) (*WAV, error) {
	w := &WAV{
		name:   opts.Name,
		law:    opts.Law,
		logger: logger,
		loop:   opts.Loop,
		output: opts.Output,
	}
	if w.law == nil {
		w.law = audio.MuLaw
	}

	if opts.Input != "" {
		f, err := os.Open(opts.Input)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		w.in, w.inChans, err = ReadWAV(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opts.Input, err)
		}
	}
	w.channels = max(opts.Channels, w.inChans)
	if w.channels < 1 {
		return nil, fmt.Errorf("%w: wav span %q has no channels", ErrChannelCount, opts.Name)
	}

	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return nil, err
		}
		w.out = f
		w.enc = wav.NewEncoder(f, audio.SampleRate, wavBitDepth, w.channels, wavFormatPCM)
		w.pending = &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: w.channels, SampleRate: audio.SampleRate},
			Data:           make([]int, 0, recordFlushFrames*w.channels),
			SourceBitDepth: wavBitDepth,
		}
	}

	logger.Debug("WAV span opened",
		zap.String("span", w.name),
		zap.String("input", opts.Input),
		zap.String("output", opts.Output),
		zap.Int("channels", w.channels),
		zap.Int("input_frames", w.frames()))
	return w, nil
}

func (w *WAV) Name() string  { return w.name }
func (w *WAV) Channels() int { return w.channels }

func (w *WAV) frames() int {
	if w.inChans == 0 {
		return 0
	}
	return len(w.in) / w.inChans
}

// Done reports whether a non-looping input has been played completely.
func (w *WAV) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.loop && w.frame >= w.frames()
}

func (w *WAV) Receive(rx [][]byte) error {
	if err := checkChunks(rx, w.channels); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	total := w.frames()
	silence := w.law.Silence()
	for k := 0; k < audio.ChunkSize; k++ {
		frame := w.frame + k
		if w.loop && total > 0 {
			frame %= total
		}
		for i := range rx {
			if frame >= total || i >= w.inChans {
				rx[i][k] = silence
				continue
			}
			s := audio.Saturate(int32(w.in[frame*w.inChans+i]))
			rx[i][k] = w.law.Encode(s)
		}
	}
	w.frame += audio.ChunkSize
	if w.loop && total > 0 {
		w.frame %= total
	}
	return nil
}

func (w *WAV) Transmit(tx [][]byte) error {
	if err := checkChunks(tx, w.channels); err != nil {
		return err
	}
	if w.enc == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	for k := 0; k < audio.ChunkSize; k++ {
		for i := range tx {
			w.pending.Data = append(w.pending.Data, int(w.law.Decode(tx[i][k])))
		}
	}
	if len(w.pending.Data)+w.channels*audio.ChunkSize > cap(w.pending.Data) {
		return w.flushLocked()
	}
	return nil
}

// flushLocked hands the pending frames to the encoder. Caller holds mu.
func (w *WAV) flushLocked() error {
	w.recorded += len(w.pending.Data) / w.channels
	err := w.enc.Write(w.pending)
	w.pending.Data = w.pending.Data[:0]
	if err != nil {
		return fmt.Errorf("%s: %w", w.output, err)
	}
	return nil
}

// Close finishes the recording, if one was requested.
func (w *WAV) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.enc == nil {
		w.closed = true
		return nil
	}
	w.closed = true

	// Always written once so an empty recording still gets its headers.
	if err := w.flushLocked(); err != nil {
		w.out.Close()
		return err
	}
	if err := w.enc.Close(); err != nil {
		w.out.Close()
		return fmt.Errorf("%s: %w", w.output, err)
	}
	w.logger.Info("Recording written",
		zap.String("span", w.name),
		zap.String("file", w.output),
		zap.Int("frames", w.recorded))
	return w.out.Close()
}

// Recorded returns the number of transmitted frames already encoded.
func (w *WAV) Recorded() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.recorded
}
