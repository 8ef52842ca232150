package mixer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-tdmmix/internal/echocan"
	"github.com/Raikerian/go-tdmmix/internal/mixer"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

// fakeSpan receives fixed chunks and captures transmitted ones.
type fakeSpan struct {
	law *audio.Law

	mu    sync.Mutex
	rx    [][]byte
	tx    [][]byte
	rxErr error
	txErr error
}

func newFakeSpan(n int, law *audio.Law) *fakeSpan {
	f := &fakeSpan{law: law, rx: make([][]byte, n), tx: make([][]byte, n)}
	for i := range f.rx {
		f.rx[i] = make([]byte, audio.ChunkSize)
		f.tx[i] = make([]byte, audio.ChunkSize)
		law.FillSilence(f.rx[i])
	}
	return f
}

func (f *fakeSpan) Name() string  { return "fake" }
func (f *fakeSpan) Channels() int { return len(f.rx) }

func (f *fakeSpan) Receive(rx [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rxErr != nil {
		return f.rxErr
	}
	for i := range rx {
		copy(rx[i], f.rx[i])
	}
	return nil
}

func (f *fakeSpan) Transmit(tx [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range tx {
		copy(f.tx[i], tx[i])
	}
	return f.txErr
}

// setRx makes slot i receive a constant linear value.
func (f *fakeSpan) setRx(i int, v int16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.rx[i] {
		f.rx[i][k] = f.law.Encode(v)
	}
}

func (f *fakeSpan) setRxRaw(i int, b byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.rx[i] {
		f.rx[i][k] = b
	}
}

// txLin returns the last transmitted chunk of slot i as linear samples.
func (f *fakeSpan) txLin(i int) []int16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int16, audio.ChunkSize)
	f.law.DecodeChunk(out, f.tx[i])
	return out
}

func (f *fakeSpan) txRaw(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.tx[i]...)
}

var errLine = errors.New("line down")

const testBlock = 16

func testParams() mixer.Params {
	p := mixer.DefaultParams()
	p.MaxChannels = 16
	p.MaxConferences = 64
	p.MaxAliases = 4
	p.BlockSize = testBlock
	p.Blocks = 4
	return p
}

func newTestMixer(t *testing.T, p mixer.Params) *mixer.Mixer {
	t.Helper()
	m, err := mixer.New(p, echocan.NewDefaultRegistry(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

// newSpanMixer returns a mixer with one fake mu-law span of n channels,
// numbered 1..n.
func newSpanMixer(t *testing.T, n int) (*mixer.Mixer, *fakeSpan) {
	t.Helper()
	m := newTestMixer(t, testParams())
	f := newFakeSpan(n, audio.MuLaw)
	nums, err := m.AddSpan(f, audio.LawMulaw)
	require.NoError(t, err)
	require.Len(t, nums, n)
	return m, f
}

func constLin(v int16) []int16 {
	s := make([]int16, audio.ChunkSize)
	for i := range s {
		s[i] = v
	}
	return s
}

func constRaw(law *audio.Law, v int16, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = law.Encode(v)
	}
	return b
}

func decode(law *audio.Law, b []byte) []int16 {
	out := make([]int16, len(b))
	law.DecodeChunk(out, b)
	return out
}

func ticks(m *mixer.Mixer, n int) {
	for i := 0; i < n; i++ {
		m.Tick()
	}
}

// readBlock reads one block without waiting.
func readBlock(t *testing.T, c *mixer.Channel) []byte {
	t.Helper()
	c.SetNonBlock(true)
	p := make([]byte, testBlock)
	n, err := c.Read(context.Background(), p)
	require.NoError(t, err)
	return p[:n]
}

func writeBlock(t *testing.T, c *mixer.Channel, b []byte) {
	t.Helper()
	c.SetNonBlock(true)
	n, err := c.Write(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
}
