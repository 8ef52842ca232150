package mixer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/chanbuf"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

// SetConf changes a channel's conference linkage. The request is validated
// completely before anything changes; a conference number that is no longer
// referenced afterwards loses its alias.
func (m *Mixer) SetConf(num int, spec ConfSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	if !spec.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(spec.Mode))
	}
	if spec.Flags&^flagMask != 0 {
		return fmt.Errorf("%w: flags 0x%x", ErrInvalidMode, int(spec.Flags))
	}
	if spec.Flags != 0 && !spec.Mode.IsConference() {
		return fmt.Errorf("%w: %s takes no flags", ErrInvalidMode, spec.Mode)
	}
	if spec.Mode == ConfRealAndPseudo && c.kind != KindReal {
		return fmt.Errorf("%w: %s needs a span channel", ErrInvalidMode, spec.Mode)
	}
	if spec.Mode.IsConference() && spec.Number == ConfAuto {
		auto, ok := m.table.FirstUnaliased()
		if !ok {
			return fmt.Errorf("%w: no unaliased conference", ErrConfMismatch)
		}
		spec.Number = auto
	}
	if (spec.Number == 0) != (spec.Mode == ConfNormal) {
		return fmt.Errorf("%w: %s", ErrConfMismatch, spec)
	}
	if spec.Mode.IsConference() && spec.Flags == 0 {
		spec.Flags = spec.Mode.DefaultFlags()
	}

	var (
		alias   int
		created bool
		target  chanRef
	)
	switch {
	case spec.Mode.IsConference():
		alias, created, err = m.table.GetOrCreate(spec.Number)
		if err != nil {
			return err
		}
		if created {
			m.acc.Clear(alias)
		}
	case spec.Mode.IsMonitor():
		t, err := m.channel(spec.Number)
		if err != nil {
			return fmt.Errorf("monitor target: %w", err)
		}
		target = t.ref()
	}

	old, oldTarget := c.conf, c.target

	c.mu.Lock()
	c.conf = spec
	c.alias = alias
	c.target = target
	c.mu.Unlock()
	c.resetHistory()

	// A monitor may name a channel whose number equals the old conference,
	// so compare linkage, not numbers. confInUse guards the release.
	m.releaseConf(old)
	m.refreshPreEcho(oldTarget)
	m.refreshPreEcho(target)

	m.logger.Debug("Conference linkage changed",
		zap.Int("channel", num),
		zap.Stringer("old", old),
		zap.Stringer("new", spec),
		zap.Int("alias", alias))
	return nil
}

// Conf returns a channel's conference linkage.
func (m *Mixer) Conf(num int) (ConfSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return ConfSpec{}, err
	}
	return c.conf, nil
}

// releaseConf drops the alias of a conference nobody names any more. Caller
// holds mu, which keeps releases between ticks.
func (m *Mixer) releaseConf(old ConfSpec) {
	if !old.Mode.IsConference() {
		return
	}
	if m.table.ReleaseIfUnreferenced(old.Number, m.confInUse) {
		m.logger.Debug("Conference alias released",
			zap.Int("conference", old.Number),
			zap.Int("high", m.table.High()))
	}
}

func (m *Mixer) confInUse(conf int) bool {
	for _, c := range m.chans {
		if c != nil && c.conf.Mode.IsConference() && c.conf.Number == conf {
			return true
		}
	}
	return false
}

// refreshPreEcho allocates the pre echo snapshot of a span channel while
// some channel monitors it in a pre-echo mode, and frees it otherwise.
// Caller holds mu.
func (m *Mixer) refreshPreEcho(r chanRef) {
	t := m.resolve(r)
	if t == nil || t.kind != KindReal {
		return
	}
	needed := false
	for _, c := range m.chans {
		if c != nil && c.conf.Mode.PreEcho() && c.target == r {
			needed = true
			break
		}
	}
	switch {
	case needed && t.preEcho == nil:
		t.preEcho = new(chunk)
	case !needed && t.preEcho != nil:
		t.preEcho = nil
	}
}

// HasPreEcho reports whether a channel currently keeps a pre echo
// cancellation snapshot.
func (m *Mixer) HasPreEcho(num int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return false, err
	}
	return c.preEcho != nil, nil
}

// SetConfMute silences a channel's talker contribution.
func (m *Mixer) SetConfMute(num int, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	return nil
}

// ConfMute returns the conference mute flag.
func (m *Mixer) ConfMute(num int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return false, err
	}
	return c.muted, nil
}

// BufInfo describes both application buffers of a channel.
type BufInfo struct {
	ReadPolicy  chanbuf.Policy
	WritePolicy chanbuf.Policy
	BlockSize   int
	Blocks      int

	// Reported only.
	ReadFull  int // committed blocks waiting for the application
	WriteFree int // blocks the application may still write
}

// SetBufInfo changes policies and geometry of both buffers. Storage for the
// new geometry is allocated before the channel is touched; on error nothing
// changes.
func (m *Mixer) SetBufInfo(num int, bi BufInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	if !bi.ReadPolicy.Valid() || !bi.WritePolicy.Valid() {
		return fmt.Errorf("%w: read=%d write=%d", chanbuf.ErrInvalidPolicy, bi.ReadPolicy, bi.WritePolicy)
	}
	return m.reconfigure(c, bi.BlockSize, bi.Blocks, &bi)
}

// BufInfo returns buffer configuration and occupancy.
func (m *Mixer) BufInfo(num int) (BufInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return BufInfo{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ri, wi := c.readBuf.Info(), c.writeBuf.Info()
	return BufInfo{
		ReadPolicy:  ri.Policy,
		WritePolicy: wi.Policy,
		BlockSize:   ri.BlockSize,
		Blocks:      ri.Blocks,
		ReadFull:    ri.Committed,
		WriteFree:   wi.Free,
	}, nil
}

// SetBlockSize changes the block size of both buffers, keeping the block
// counts.
func (m *Mixer) SetBlockSize(num, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	return m.reconfigure(c, size, c.readBuf.Blocks(), nil)
}

// BlockSize returns the block size of the channel buffers.
func (m *Mixer) BlockSize(num int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readBuf.BlockSize(), nil
}

// reconfigure swaps both buffers to a new geometry. Caller holds m.mu.
func (m *Mixer) reconfigure(c *Channel, size, blocks int, policies *BufInfo) error {
	limits := m.params.Limits
	rs, err := limits.Prepare(size, blocks)
	if err != nil {
		return err
	}
	ws, err := limits.Prepare(size, blocks)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if policies != nil {
		// Both policies were validated by the caller.
		_ = c.readBuf.SetPolicy(policies.ReadPolicy)
		_ = c.writeBuf.SetPolicy(policies.WritePolicy)
	}
	c.readBuf.Install(rs)
	c.writeBuf.Install(ws)
	c.resizeScratch()
	c.mu.Unlock()

	signal(c.writable)
	return nil
}

// SetLinear switches the application encoding between companded bytes and
// little-endian int16.
func (m *Mixer) SetLinear(num int, linear bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.linear = linear
	c.mu.Unlock()
	return nil
}

// Linear returns the linear flag.
func (m *Mixer) Linear(num int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return false, err
	}
	return c.linear, nil
}

// SetLaw selects the channel's companding law. LawDefault returns to the
// span's law, or the mixer default for pseudo channels. Gains given in dB
// are recomputed for the new law; gains given as raw tables are reset.
func (m *Mixer) SetLaw(num int, id audio.LawID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	law := m.defaultLaw(c)
	if id != audio.LawDefault {
		if law, err = audio.LawByID(id); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if law != c.law {
		if c.gainDB != nil {
			c.rxGain = m.gains.Table(law, c.gainDB.rx)
			c.txGain = m.gains.Table(law, c.gainDB.tx)
		} else {
			c.rxGain, c.txGain = audio.IdentityGain(), audio.IdentityGain()
		}
	}
	c.law = law
	c.lawID = id
	return nil
}

// Law returns the law in use.
func (m *Mixer) Law(num int) (audio.LawID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return audio.LawDefault, err
	}
	return c.law.ID(), nil
}

// SetGains installs raw gain tables. A nil table means unity gain.
func (m *Mixer) SetGains(num int, rx, tx *audio.GainTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	if rx == nil {
		rx = audio.IdentityGain()
	}
	if tx == nil {
		tx = audio.IdentityGain()
	}
	c.mu.Lock()
	c.rxGain, c.txGain = rx, tx
	c.gainDB = nil
	c.mu.Unlock()
	return nil
}

// SetGainDB sets rx and tx gain in decibels.
func (m *Mixer) SetGainDB(num int, rxDB, txDB float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	rx := m.gains.Table(c.law, rxDB)
	tx := m.gains.Table(c.law, txDB)
	c.mu.Lock()
	c.rxGain, c.txGain = rx, tx
	c.gainDB = &gainDB{rx: rxDB, tx: txDB}
	c.mu.Unlock()
	return nil
}

// GainDB returns the gains set with SetGainDB; ok is false for raw tables.
func (m *Mixer) GainDB(num int) (rxDB, txDB float64, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return 0, 0, false, err
	}
	if c.gainDB == nil {
		return 0, 0, c.rxGain.IsIdentity() && c.txGain.IsIdentity(), nil
	}
	return c.gainDB.rx, c.gainDB.tx, true, nil
}

// SetEchoCanceller attaches a canceller from the registry to a span
// channel. An empty name or zero taps selects the configured defaults.
func (m *Mixer) SetEchoCanceller(num int, name string, taps int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	if c.kind != KindReal {
		return fmt.Errorf("%w: echo cancellation on %d", ErrNotReal, num)
	}
	if name == "" {
		name = m.params.EchoCanceller
	}
	if taps == 0 {
		taps = m.params.EchoTaps
	}
	ec, err := m.echo.Create(name, taps)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.ec
	c.ec = ec
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	m.logger.Debug("Echo canceller enabled",
		zap.Int("channel", num),
		zap.String("canceller", name),
		zap.Int("taps", taps))
	return nil
}

// DisableEchoCanceller removes the channel's canceller, if any.
func (m *Mixer) DisableEchoCanceller(num int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.ec
	c.ec = nil
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// EchoCanceller returns the name of the active canceller, or "".
func (m *Mixer) EchoCanceller(num int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channel(num)
	if err != nil {
		return "", err
	}
	if c.ec == nil {
		return "", nil
	}
	return c.ec.Name(), nil
}

// ConfLink feeds conference src into conference dst every tick.
func (m *Mixer) ConfLink(src, dst int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links.Add(src, dst)
}

// ConfUnlink removes a link. Unlinking 0 -> 0 removes every link.
func (m *Mixer) ConfUnlink(src, dst int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if src == 0 && dst == 0 {
		had := m.links.Len() > 0
		m.links.Clear()
		return had
	}
	return m.links.Remove(src, dst)
}

// ConferenceSum returns a copy of the current generation of a conference,
// i.e. the complete sum of the last tick.
func (m *Mixer) ConferenceSum(conf int) ([]int16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alias, ok := m.table.Lookup(conf)
	if !ok {
		return nil, false
	}
	return append([]int16(nil), m.acc.Current(alias)...), true
}

// Conferences returns the number of conferences holding an alias.
func (m *Mixer) Conferences() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Active()
}
