package mixer

import "github.com/Raikerian/go-tdmmix/pkg/audio"

// Per-channel chunk processing. "Ingest" is audio entering the mixer from a
// channel: hardware rx for span channels, application writes for pseudo
// channels. "Emit" is audio leaving it: hardware tx for span channels, the
// application read stream for pseudo channels. Everything here runs under
// the mixer lock.

var silence chunk

// talk adds src into sum, or nothing when muted, and records in last what
// was actually added.
func (c *Channel) talk(sum []int16, src, last *chunk) {
	if c.muted {
		src = &silence
	}
	audio.Contribute(sum, src[:], last[:])
}

// listen turns dst into dst - confLast + current.
func (m *Mixer) listen(c *Channel, dst *chunk) {
	audio.SubSat(dst[:], c.confLast[:])
	audio.AddSat(dst[:], m.acc.Current(c.alias))
}

// announce feeds src into the next generation when c carries flag,
// keeping one tick of contribution history for the pseudo listener.
func (m *Mixer) announce(c *Channel, src *chunk, flag ConfFlag) {
	c.confLast2 = c.confLast1
	if !c.conf.Flags.Has(flag) {
		c.confLast1 = chunk{}
		return
	}
	c.talk(m.acc.Next(c.alias), src, &c.confLast1)
}

// rxOf is what the monitored channel t receives from its far end.
func rxOf(t *Channel, preEcho bool) *chunk {
	if t.kind == KindPseudo {
		return &t.getLin
	}
	if preEcho && t.preEcho != nil {
		return t.preEcho
	}
	return &t.putLin
}

// txOf is what the monitored channel t sends towards its far end.
func txOf(t *Channel) *chunk {
	if t.kind == KindPseudo {
		return &t.putLin
	}
	return &t.getLin
}

// addMonitored mixes the monitored streams into dst. A stale target
// contributes nothing.
func (m *Mixer) addMonitored(c *Channel, dst *chunk) {
	t := m.resolve(c.target)
	if t == nil {
		return
	}
	mode := c.conf.Mode
	if mode.monitorsRx() {
		audio.AddSat(dst[:], rxOf(t, mode.PreEcho())[:])
	}
	if mode.monitorsTx() {
		audio.AddSat(dst[:], txOf(t)[:])
	}
}

// digitalSource is the raw stream a digital monitor copies from t.
func digitalSource(t *Channel, forLine bool) rawChunk {
	if t.kind == KindReal {
		if forLine {
			return t.getRaw
		}
		return t.putRaw
	}
	if forLine {
		return t.putRaw
	}
	return t.getRaw
}

// realIngest processes one received chunk of a span channel. raw is
// rewritten in place.
func (m *Mixer) realIngest(c *Channel, raw []byte) {
	law := c.law
	if c.ec != nil || c.preEcho != nil {
		var lin chunk
		law.DecodeChunk(lin[:], raw)
		if c.preEcho != nil {
			*c.preEcho = lin
		}
		if c.ec != nil {
			c.ec.Process(lin[:], c.getLin[:])
			law.EncodeChunk(raw, lin[:])
		}
	}
	c.rxGain.Apply(raw)
	copy(c.putRaw[:], raw)
	law.DecodeChunk(c.putLin[:], raw)

	stream := c.putRaw
	switch c.conf.Mode {
	case ConfConf, ConfAnnounce:
		m.realTalk(c)
	case ConfConfMonitor, ConfAnnounceMonitor:
		m.realTalk(c)
		law.EncodeChunk(stream[:], m.acc.Previous(c.alias))
	case ConfRealAndPseudo:
		m.realTalk(c)
		var lin chunk
		if c.conf.Flags.Has(FlagPseudoListener) {
			audio.SubSat(lin[:], c.confLast2[:])
			audio.AddSat(lin[:], m.acc.Current(c.alias))
		}
		law.EncodeChunk(stream[:], lin[:])
	}
	m.deliver(c, stream[:])
}

func (m *Mixer) realTalk(c *Channel) {
	if !c.conf.Flags.Has(FlagTalker) {
		c.confLast = chunk{}
		return
	}
	c.talk(m.acc.Next(c.alias), &c.putLin, &c.confLast)
}

// realEmit builds the chunk a span channel transmits into tx.
func (m *Mixer) realEmit(c *Channel, tx []byte) {
	law := c.law
	var raw rawChunk
	m.collect(c, raw[:])
	var lin chunk
	law.DecodeChunk(lin[:], raw[:])

	mode := c.conf.Mode
	switch {
	case mode == ConfDigitalMonitor:
		t := m.resolve(c.target)
		if t == nil {
			break
		}
		src := digitalSource(t, true)
		if c.ec == nil {
			// Bit exact: no decode, no gain.
			c.getRaw = src
			law.DecodeChunk(c.getLin[:], src[:])
			copy(tx, src[:])
			return
		}
		law.DecodeChunk(lin[:], src[:])
	case mode.IsMonitor():
		m.addMonitored(c, &lin)
	case mode == ConfConf || mode == ConfConfMonitor:
		if c.conf.Flags.Has(FlagListener) {
			m.listen(c, &lin)
		}
	case mode == ConfAnnounce || mode == ConfAnnounceMonitor:
		m.announce(c, &lin, FlagTalker)
		lin = chunk{}
		if c.conf.Flags.Has(FlagListener) {
			m.listen(c, &lin)
		}
	case mode == ConfRealAndPseudo:
		m.announce(c, &lin, FlagPseudoTalker)
		lin = chunk{}
		if c.conf.Flags.Has(FlagListener) {
			m.listen(c, &lin)
		}
	}

	c.getLin = lin
	law.EncodeChunk(raw[:], lin[:])
	c.getRaw = raw
	c.txGain.Apply(raw[:])
	copy(tx, raw[:])
}

// pseudoIngest takes the application's written audio into the mixer.
func (m *Mixer) pseudoIngest(c *Channel) {
	var raw rawChunk
	m.collect(c, raw[:])
	c.txGain.Apply(raw[:])
	c.getRaw = raw
	c.law.DecodeChunk(c.getLin[:], raw[:])

	switch c.conf.Mode {
	case ConfConf, ConfAnnounce, ConfAnnounceMonitor:
		if !c.conf.Flags.Has(FlagTalker) {
			c.confLast = chunk{}
			break
		}
		c.talk(m.acc.Current(c.alias), &c.getLin, &c.confLast)
	}
}

// pseudoEmit builds the application read stream of a pseudo channel.
func (m *Mixer) pseudoEmit(c *Channel) {
	var (
		lin     chunk
		raw     rawChunk
		digital bool
	)
	mode := c.conf.Mode
	switch {
	case mode == ConfDigitalMonitor:
		if t := m.resolve(c.target); t != nil {
			raw = digitalSource(t, false)
			digital = true
		}
	case mode.IsMonitor():
		m.addMonitored(c, &lin)
	case mode.IsConference():
		if c.conf.Flags.Has(FlagListener) {
			m.listen(c, &lin)
		}
	}

	if digital {
		c.law.DecodeChunk(c.putLin[:], raw[:])
	} else {
		c.putLin = lin
		c.law.EncodeChunk(raw[:], lin[:])
	}
	c.putRaw = raw
	if !digital {
		c.rxGain.Apply(raw[:])
	}
	m.deliver(c, raw[:])
}

// deliver appends a chunk to the read buffer of an open channel.
func (m *Mixer) deliver(c *Channel, stream []byte) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	if _, overrun := c.readBuf.Fill(stream); overrun {
		c.pushEvent(EventReadOverrun)
	}
	ready := c.readBuf.Readable()
	c.mu.Unlock()

	if ready {
		signal(c.readable)
	}
}

// collect drains one chunk of application writes into dst, padding with
// silence.
func (m *Mixer) collect(c *Channel, dst []byte) {
	n := 0
	c.mu.Lock()
	open := c.open
	if open {
		var underrun bool
		if n, underrun = c.writeBuf.Drain(dst); underrun {
			c.pushEvent(EventWriteUnderrun)
		}
	}
	writable := open && c.writeBuf.Writable()
	c.mu.Unlock()

	c.law.FillSilence(dst[n:])
	if writable {
		signal(c.writable)
	}
}
