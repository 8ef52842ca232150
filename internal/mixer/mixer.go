// Package mixer implements the per-tick audio path: channels, conference
// mixing and the fixed tick sequence that moves audio between line
// interfaces, conference buses and application buffers.
package mixer

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/chanbuf"
	"github.com/Raikerian/go-tdmmix/internal/conference"
	"github.com/Raikerian/go-tdmmix/internal/echocan"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

// LineInterface is a span of hardware channels. Receive fills rx[i] with one
// chunk for channel i; Transmit consumes tx[i]. Both run inside the tick and
// must not block.
type LineInterface interface {
	Name() string
	Channels() int
	Receive(rx [][]byte) error
	Transmit(tx [][]byte) error
}

// Params sizes a Mixer.
type Params struct {
	MaxChannels    int
	MaxConferences int
	MaxAliases     int
	MaxLinks       int
	DefaultLaw     audio.LawID
	Limits         chanbuf.Limits
	BlockSize      int
	Blocks         int
	ReadPolicy     chanbuf.Policy
	WritePolicy    chanbuf.Policy
	GainCacheSize  int
	EchoCanceller  string
	EchoTaps       int
	EventQueue     int
}

// DefaultParams returns the stock sizing.
func DefaultParams() Params {
	return Params{
		MaxChannels:    1024,
		MaxConferences: conference.DefaultMaxConferences,
		MaxAliases:     conference.DefaultMaxAliases,
		MaxLinks:       conference.DefaultMaxLinks,
		DefaultLaw:     audio.LawMulaw,
		Limits:         chanbuf.DefaultLimits(),
		BlockSize:      chanbuf.DefaultBlockSize,
		Blocks:         chanbuf.DefaultBlocks,
		GainCacheSize:  64,
		EchoCanceller:  echocan.NLMSName,
		EchoTaps:       echocan.DefaultTaps,
		EventQueue:     32,
	}
}

type spanBinding struct {
	li        LineInterface
	law       *audio.Law
	chans     []*Channel
	rx, tx    [][]byte
	rxFailing bool
	txFailing bool
}

// Mixer owns every channel, the conference state and the tick.
//
// Lock order is Mixer.mu before Channel.mu. Tick and every configuration
// operation hold Mixer.mu, so conference aliases are only created and
// released between ticks.
type Mixer struct {
	mu     sync.Mutex
	logger *zap.Logger
	params Params
	law    *audio.Law

	chans []*Channel // by number, index 0 unused
	spans []*spanBinding
	gen   uint64

	table *conference.Table
	acc   *conference.Accumulators
	links *conference.Links
	gains *audio.GainCache
	echo  *echocan.Registry

	ticks   uint64
	stopped bool
	done    chan struct{}
}

// New creates a Mixer.
func New(p Params, echo *echocan.Registry, logger *zap.Logger) (*Mixer, error) {
	if p.MaxChannels < 1 {
		return nil, fmt.Errorf("max channels must be positive, got %d", p.MaxChannels)
	}
	law, err := audio.LawByID(p.DefaultLaw)
	if err != nil {
		return nil, fmt.Errorf("default law: %w", err)
	}
	if err := p.Limits.Validate(p.BlockSize, p.Blocks); err != nil {
		return nil, fmt.Errorf("default buffers: %w", err)
	}
	if !p.ReadPolicy.Valid() || !p.WritePolicy.Valid() {
		return nil, fmt.Errorf("%w: read=%d write=%d", chanbuf.ErrInvalidPolicy, p.ReadPolicy, p.WritePolicy)
	}
	table, err := conference.NewTable(p.MaxConferences, p.MaxAliases)
	if err != nil {
		return nil, err
	}
	gains, err := audio.NewGainCache(p.GainCacheSize)
	if err != nil {
		return nil, err
	}
	if echo == nil {
		echo = echocan.NewDefaultRegistry()
	}
	if p.EventQueue < 1 {
		p.EventQueue = 1
	}

	return &Mixer{
		logger: logger,
		params: p,
		law:    law,
		chans:  make([]*Channel, p.MaxChannels+1),
		table:  table,
		acc:    conference.NewAccumulators(table.MaxAlias()),
		links:  conference.NewLinks(p.MaxLinks),
		gains:  gains,
		echo:   echo,
		done:   make(chan struct{}),
	}, nil
}

// Params returns the sizing the mixer was created with.
func (m *Mixer) Params() Params { return m.params }

// Ticks returns the number of completed ticks.
func (m *Mixer) Ticks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

// freeNumber returns the lowest unused channel number. Caller holds mu.
func (m *Mixer) freeNumber() (int, error) {
	for n := 1; n < len(m.chans); n++ {
		if m.chans[n] == nil {
			return n, nil
		}
	}
	return 0, ErrTooManyChannels
}

// newChannel builds a channel with default configuration. Caller holds mu.
func (m *Mixer) newChannel(num int, kind Kind, law *audio.Law) (*Channel, error) {
	rb, err := chanbuf.New(m.params.BlockSize, m.params.Blocks, m.params.ReadPolicy, m.params.Limits)
	if err != nil {
		return nil, err
	}
	wb, err := chanbuf.New(m.params.BlockSize, m.params.Blocks, m.params.WritePolicy, m.params.Limits)
	if err != nil {
		return nil, err
	}
	m.gen++
	c := &Channel{
		m:          m,
		num:        num,
		gen:        m.gen,
		kind:       kind,
		law:        law,
		rxGain:     audio.IdentityGain(),
		txGain:     audio.IdentityGain(),
		readBuf:    rb,
		writeBuf:   wb,
		eventLimit: m.params.EventQueue,
		done:       make(chan struct{}),
		readable:   make(chan struct{}, 1),
		writable:   make(chan struct{}, 1),
	}
	c.resizeScratch()
	return c, nil
}

// AddSpan attaches a line interface and creates one channel per slot, each
// taking the lowest free channel number. It returns the channel numbers.
func (m *Mixer) AddSpan(li LineInterface, law audio.LawID) ([]int, error) {
	if li == nil {
		return nil, ErrNilSpan
	}
	if law == audio.LawDefault {
		law = m.law.ID()
	}
	spanLaw, err := audio.LawByID(law)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrMixerStopped
	}
	n := li.Channels()
	sp := &spanBinding{
		li:    li,
		law:   spanLaw,
		chans: make([]*Channel, 0, n),
		rx:    make([][]byte, n),
		tx:    make([][]byte, n),
	}
	nums := make([]int, 0, n)
	for i := 0; i < n; i++ {
		sp.rx[i] = make([]byte, audio.ChunkSize)
		sp.tx[i] = make([]byte, audio.ChunkSize)

		num, err := m.freeNumber()
		if err == nil {
			var c *Channel
			if c, err = m.newChannel(num, KindReal, spanLaw); err == nil {
				c.span = sp
				sp.chans = append(sp.chans, c)
				m.chans[num] = c
				nums = append(nums, num)
				continue
			}
		}
		// Roll back the channels registered so far.
		for _, c := range sp.chans {
			m.chans[c.num] = nil
		}
		return nil, fmt.Errorf("failed to add span %s: %w", li.Name(), err)
	}
	m.spans = append(m.spans, sp)

	m.logger.Info("Span attached",
		zap.String("span", li.Name()),
		zap.Int("channels", n),
		zap.Stringer("law", spanLaw.ID()),
		zap.Ints("numbers", nums))
	return nums, nil
}

// channel returns the live channel numbered num. Caller holds mu.
func (m *Mixer) channel(num int) (*Channel, error) {
	if num < 1 || num >= len(m.chans) || m.chans[num] == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoChannel, num)
	}
	return m.chans[num], nil
}

// resolve follows a weak reference. Caller holds mu.
func (m *Mixer) resolve(r chanRef) *Channel {
	if r.num < 1 || r.num >= len(m.chans) {
		return nil
	}
	c := m.chans[r.num]
	if c == nil || c.gen != r.gen {
		return nil
	}
	return c
}

// Channel returns the channel numbered num, open or not.
func (m *Mixer) Channel(num int) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel(num)
}

// Open claims a span channel for application I/O.
func (m *Mixer) Open(num int) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrMixerStopped
	}
	c, err := m.channel(num)
	if err != nil {
		return nil, err
	}
	if c.kind != KindReal {
		return nil, fmt.Errorf("%w: %d is a pseudo channel", ErrNotReal, num)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil, fmt.Errorf("%w: %d", ErrBusy, num)
	}
	c.open = true
	c.done = make(chan struct{})
	c.readBuf.Reset()
	c.writeBuf.Reset()
	c.events = nil
	return c, nil
}

// OpenPseudo creates a pseudo channel at the lowest free number. Pseudo
// channels exist only while open.
func (m *Mixer) OpenPseudo() (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrMixerStopped
	}
	num, err := m.freeNumber()
	if err != nil {
		return nil, err
	}
	c, err := m.newChannel(num, KindPseudo, m.law)
	if err != nil {
		return nil, err
	}
	c.open = true
	m.chans[num] = c

	m.logger.Debug("Pseudo channel opened", zap.Int("channel", num))
	return c, nil
}

// Close ends the application session on a channel. Its conference linkage,
// echo canceller, gains, law and buffers return to defaults; a pseudo
// channel is destroyed.
func (m *Mixer) Close(num int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	old := c.conf
	oldTarget := c.target

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrClosed, num)
	}
	c.open = false
	close(c.done)
	c.conf = ConfSpec{}
	c.alias = 0
	c.target = chanRef{}
	c.muted = false
	c.linear = false
	c.nonBlock = false
	c.lawID = audio.LawDefault
	c.law = m.defaultLaw(c)
	c.rxGain, c.txGain = audio.IdentityGain(), audio.IdentityGain()
	c.gainDB = nil
	ec := c.ec
	c.ec = nil
	c.readBuf.Reset()
	c.writeBuf.Reset()
	c.events = nil
	c.mu.Unlock()

	if ec != nil {
		ec.Close()
	}
	c.resetHistory()
	if c.kind == KindPseudo {
		m.chans[num] = nil
		// Monitors of this channel now hold stale references.
		c.preEcho = nil
	}
	m.releaseConf(old)
	m.refreshPreEcho(oldTarget)

	m.logger.Debug("Channel closed", zap.Int("channel", num), zap.Stringer("kind", c.kind))
	return nil
}

// defaultLaw is the law a channel falls back to. Caller holds mu.
func (m *Mixer) defaultLaw(c *Channel) *audio.Law {
	if c.span != nil {
		return c.span.law
	}
	return m.law
}

// Stop detaches every span and wakes blocked readers and writers. Spans
// implementing io.Closer are closed.
func (m *Mixer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true
	close(m.done)

	var firstErr error
	for _, sp := range m.spans {
		if cl, ok := sp.li.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				m.logger.Error("Failed to close span", zap.String("span", sp.li.Name()), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	for _, c := range m.chans {
		if c != nil && c.ec != nil {
			c.ec.Close()
		}
	}
	m.logger.Info("Mixer stopped", zap.Uint64("ticks", m.ticks))
	return firstErr
}

func (c *Channel) resetHistory() {
	c.confLast = chunk{}
	c.confLast1 = chunk{}
	c.confLast2 = chunk{}
}
