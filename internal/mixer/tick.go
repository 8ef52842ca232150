package mixer

import "go.uber.org/zap"

// Tick runs one period of the audio path. The order is fixed:
//
//  1. span channels ingest hardware rx; talkers feed the next generation
//  2. the conference generations rotate
//  3. pseudo channels ingest application writes into the current
//     generation, then conference links are applied
//  4. pseudo channels emit the application read stream
//  5. span channels emit and each span transmits
//
// REAL_AND_PSEUDO relies on steps 1 and 3 staying on opposite sides of the
// rotation.
func (m *Mixer) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	for _, sp := range m.spans {
		m.receiveSpan(sp)
	}

	m.acc.Rotate(m.table.High())

	for _, c := range m.chans {
		if c != nil && c.kind == KindPseudo {
			m.pseudoIngest(c)
		}
	}
	m.links.Apply(m.table, m.acc)

	for _, c := range m.chans {
		if c != nil && c.kind == KindPseudo {
			m.pseudoEmit(c)
		}
	}

	for _, sp := range m.spans {
		m.transmitSpan(sp)
	}

	m.ticks++
}

func (m *Mixer) receiveSpan(sp *spanBinding) {
	err := sp.li.Receive(sp.rx)
	if err != nil {
		for _, rx := range sp.rx {
			sp.law.FillSilence(rx)
		}
	}
	if (err != nil) != sp.rxFailing {
		sp.rxFailing = err != nil
		if err != nil {
			m.logger.Warn("Span receive failed, substituting silence", zap.String("span", sp.li.Name()), zap.Error(err))
		} else {
			m.logger.Info("Span receive recovered", zap.String("span", sp.li.Name()))
		}
	}

	for i, c := range sp.chans {
		m.realIngest(c, sp.rx[i])
	}
}

func (m *Mixer) transmitSpan(sp *spanBinding) {
	for i, c := range sp.chans {
		m.realEmit(c, sp.tx[i])
	}

	err := sp.li.Transmit(sp.tx)
	if (err != nil) != sp.txFailing {
		sp.txFailing = err != nil
		if err != nil {
			m.logger.Warn("Span transmit failed", zap.String("span", sp.li.Name()), zap.Error(err))
		} else {
			m.logger.Info("Span transmit recovered", zap.String("span", sp.li.Name()))
		}
	}
}
