package mixer_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-tdmmix/internal/mixer"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

func TestMonitorModes(t *testing.T) {
	tests := []struct {
		mode   mixer.ConfMode
		first  int16
		second int16
	}{
		{mixer.ConfMonitor, 64, 64},
		{mixer.ConfMonitorTx, 0, 32},
		{mixer.ConfMonitorBoth, 64, 96},
		{mixer.ConfMonitorRxPreEcho, 64, 64},
		{mixer.ConfMonitorBothPreEcho, 64, 96},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			m, f := newSpanMixer(t, 1)
			a, err := m.Open(1)
			require.NoError(t, err)
			mon, err := m.OpenPseudo()
			require.NoError(t, err)
			require.NoError(t, m.SetConf(mon.Number(), mixer.ConfSpec{Number: 1, Mode: tt.mode}))

			f.setRx(0, 64)
			writeBlock(t, a, constRaw(audio.MuLaw, 32, testBlock))
			ticks(m, 2)

			// Pseudo channels emit before span channels, so the monitored
			// transmit stream shows up one tick late.
			got := decode(audio.MuLaw, readBlock(t, mon))
			assert.Equal(t, append(constLin(tt.first), constLin(tt.second)...), got)
		})
	}
}

func TestMonitorPseudoTarget(t *testing.T) {
	m, _ := newSpanMixer(t, 1)
	src, err := m.OpenPseudo()
	require.NoError(t, err)
	mon, err := m.OpenPseudo()
	require.NoError(t, err)
	require.NoError(t, m.SetConf(mon.Number(), mixer.ConfSpec{Number: src.Number(), Mode: mixer.ConfMonitor}))

	// A pseudo channel's rx is what its application writes.
	writeBlock(t, src, constRaw(audio.MuLaw, 40, testBlock))
	ticks(m, 2)
	assert.Equal(t, append(constLin(40), constLin(40)...), decode(audio.MuLaw, readBlock(t, mon)))
}

func TestMonitorStaleTargetIsSilent(t *testing.T) {
	m, _ := newSpanMixer(t, 1)
	src, err := m.OpenPseudo()
	require.NoError(t, err)
	num := src.Number()
	mon, err := m.OpenPseudo()
	require.NoError(t, err)
	require.NoError(t, m.SetConf(mon.Number(), mixer.ConfSpec{Number: num, Mode: mixer.ConfMonitor}))

	require.NoError(t, m.Close(num))
	reuse, err := m.OpenPseudo()
	require.NoError(t, err)
	require.Equal(t, num, reuse.Number(), "the number is reused")

	writeBlock(t, reuse, constRaw(audio.MuLaw, 40, testBlock))
	ticks(m, 2)
	assert.Equal(t, append(constLin(0), constLin(0)...), decode(audio.MuLaw, readBlock(t, mon)))
}

func TestDigitalMonitorIsBitExact(t *testing.T) {
	m, f := newSpanMixer(t, 2)
	mon, err := m.OpenPseudo()
	require.NoError(t, err)
	require.NoError(t, m.SetLaw(mon.Number(), audio.LawAlaw))
	require.NoError(t, m.SetGainDB(mon.Number(), 6, 0))
	require.NoError(t, m.SetConf(mon.Number(), mixer.ConfSpec{Number: 1, Mode: mixer.ConfDigitalMonitor}))
	require.NoError(t, m.SetConf(2, mixer.ConfSpec{Number: 1, Mode: mixer.ConfDigitalMonitor}))

	a, err := m.Open(1)
	require.NoError(t, err)
	writeBlock(t, a, bytes.Repeat([]byte{0x34}, testBlock))

	f.setRxRaw(0, 0x12)
	ticks(m, 2)
	assert.Equal(t, bytes.Repeat([]byte{0x12}, testBlock), readBlock(t, mon))

	// A span channel digitally monitoring a span channel copies its transmit.
	assert.Equal(t, bytes.Repeat([]byte{0x34}, audio.ChunkSize), f.txRaw(0))
	assert.Equal(t, f.txRaw(0), f.txRaw(1))
}

func TestPreEchoSnapshotLifecycle(t *testing.T) {
	m, _ := newSpanMixer(t, 1)
	a, err := m.OpenPseudo()
	require.NoError(t, err)
	b, err := m.OpenPseudo()
	require.NoError(t, err)

	has, err := m.HasPreEcho(1)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, m.SetConf(a.Number(), mixer.ConfSpec{Number: 1, Mode: mixer.ConfMonitorRxPreEcho}))
	require.NoError(t, m.SetConf(b.Number(), mixer.ConfSpec{Number: 1, Mode: mixer.ConfMonitorTxPreEcho}))
	has, _ = m.HasPreEcho(1)
	assert.True(t, has)

	require.NoError(t, m.SetConf(a.Number(), mixer.ConfSpec{}))
	has, _ = m.HasPreEcho(1)
	assert.True(t, has, "still watched by the second monitor")

	require.NoError(t, m.Close(b.Number()))
	has, _ = m.HasPreEcho(1)
	assert.False(t, has)
}

func TestPreEchoMonitorHearsUncancelledAudio(t *testing.T) {
	m, f := newSpanMixer(t, 1)
	require.NoError(t, m.SetEchoCanceller(1, "", 0))
	pre, err := m.OpenPseudo()
	require.NoError(t, err)
	require.NoError(t, m.SetConf(pre.Number(), mixer.ConfSpec{Number: 1, Mode: mixer.ConfMonitorRxPreEcho}))

	// With nothing transmitted the canceller has no reference, so both
	// streams agree; the pre-echo one must carry the raw rx.
	f.setRx(0, 64)
	ticks(m, 2)
	assert.Equal(t, append(constLin(64), constLin(64)...), decode(audio.MuLaw, readBlock(t, pre)))
}
