package mixer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-tdmmix/internal/conference"
	"github.com/Raikerian/go-tdmmix/internal/mixer"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

func TestTwoTalkersAndMonitor(t *testing.T) {
	m, f := newSpanMixer(t, 2)
	c, err := m.OpenPseudo()
	require.NoError(t, err)

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 5, Mode: mixer.ConfConf}))
	require.NoError(t, m.SetConf(2, mixer.ConfSpec{Number: 5, Mode: mixer.ConfConf}))
	require.NoError(t, m.SetConf(c.Number(), mixer.ConfSpec{Number: 5, Mode: mixer.ConfConfMonitor}))

	f.setRx(0, 64)
	f.setRx(1, 32)
	ticks(m, 2)

	sum, ok := m.ConferenceSum(5)
	require.True(t, ok)
	assert.Equal(t, constLin(96), sum)

	heard := decode(audio.MuLaw, readBlock(t, c))
	assert.Equal(t, append(constLin(96), constLin(96)...), heard)

	// Each talker hears only the other one.
	assert.Equal(t, constLin(32), f.txLin(0))
	assert.Equal(t, constLin(64), f.txLin(1))

	// As a pure listener, channel 1 hears channel 2 alone.
	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 5, Mode: mixer.ConfConfMonitor}))
	m.Tick()
	assert.Equal(t, constLin(32), f.txLin(0))
	sum, _ = m.ConferenceSum(5)
	assert.Equal(t, constLin(32), sum)
}

func TestTalkerDoesNotHearItself(t *testing.T) {
	m, f := newSpanMixer(t, 1)
	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 3, Mode: mixer.ConfConf}))

	f.setRx(0, 1000)
	ticks(m, 3)

	sum, ok := m.ConferenceSum(3)
	require.True(t, ok)
	assert.Equal(t, decode(audio.MuLaw, constRaw(audio.MuLaw, 1000, audio.ChunkSize)), sum)
	assert.Equal(t, constLin(0), f.txLin(0))
}

func TestConfSaturates(t *testing.T) {
	m, f := newSpanMixer(t, 3)
	for ch := 1; ch <= 3; ch++ {
		require.NoError(t, m.SetConf(ch, mixer.ConfSpec{Number: 9, Mode: mixer.ConfConf}))
	}
	f.setRx(0, 20000)
	f.setRx(1, 20000)
	m.Tick()

	sum, _ := m.ConferenceSum(9)
	assert.Equal(t, constLin(32767), sum)

	q := audio.MuLaw.Decode(audio.MuLaw.Encode(20000))
	loudest := audio.MuLaw.Decode(audio.MuLaw.Encode(32767))
	// Channel 1 added all of q, channel 2 only what still fitted.
	assert.Equal(t, constLin(audio.MuLaw.Decode(audio.MuLaw.Encode(32767-q))), f.txLin(0))
	assert.Equal(t, constLin(q), f.txLin(1))
	assert.Equal(t, constLin(loudest), f.txLin(2))
}

func TestConfInvariantHoldsAfterFailures(t *testing.T) {
	p := testParams()
	p.MaxAliases = 1
	m := newTestMixer(t, p)
	f := newFakeSpan(2, audio.MuLaw)
	_, err := m.AddSpan(f, audio.LawDefault)
	require.NoError(t, err)

	check := func() {
		t.Helper()
		for ch := 1; ch <= 2; ch++ {
			spec, err := m.Conf(ch)
			require.NoError(t, err)
			assert.Equal(t, spec.Number == 0, spec.Mode == mixer.ConfNormal, "channel %d: %s", ch, spec)
		}
	}

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 4, Mode: mixer.ConfConf}))
	check()

	assert.ErrorIs(t, m.SetConf(1, mixer.ConfSpec{Number: 0, Mode: mixer.ConfConf}), mixer.ErrConfMismatch)
	check()
	assert.ErrorIs(t, m.SetConf(1, mixer.ConfSpec{Number: 4, Mode: mixer.ConfNormal}), mixer.ErrConfMismatch)
	check()
	assert.ErrorIs(t, m.SetConf(1, mixer.ConfSpec{Number: 4, Mode: mixer.ConfMode(42)}), mixer.ErrInvalidMode)
	check()
	assert.ErrorIs(t, m.SetConf(1, mixer.ConfSpec{Number: 4, Mode: mixer.ConfConf, Flags: 0x1}), mixer.ErrInvalidMode)
	check()
	assert.ErrorIs(t, m.SetConf(2, mixer.ConfSpec{Mode: mixer.ConfNormal, Flags: mixer.FlagTalker}), mixer.ErrInvalidMode)
	check()
	assert.ErrorIs(t, m.SetConf(2, mixer.ConfSpec{Number: 1, Mode: mixer.ConfMonitor, Flags: mixer.FlagListener}), mixer.ErrInvalidMode)
	check()

	// The only alias is taken, so a second conference cannot be created.
	assert.ErrorIs(t, m.SetConf(2, mixer.ConfSpec{Number: 8, Mode: mixer.ConfConf}), conference.ErrExhausted)
	check()
	spec, err := m.Conf(2)
	require.NoError(t, err)
	assert.Equal(t, mixer.ConfSpec{}, spec)

	assert.ErrorIs(t, m.SetConf(2, mixer.ConfSpec{Number: 99, Mode: mixer.ConfMonitor}), mixer.ErrNoChannel)
	check()
	assert.ErrorIs(t, m.SetConf(2, mixer.ConfSpec{Number: 999, Mode: mixer.ConfConf}), conference.ErrInvalidConference)
	check()

	spec, err = m.Conf(1)
	require.NoError(t, err)
	assert.Equal(t, mixer.ConfSpec{Number: 4, Mode: mixer.ConfConf, Flags: mixer.FlagTalker | mixer.FlagListener}, spec)
}

func TestAliasReleasedAndRecreatedZeroed(t *testing.T) {
	m, f := newSpanMixer(t, 2)
	for ch := 1; ch <= 2; ch++ {
		require.NoError(t, m.SetConf(ch, mixer.ConfSpec{Number: 5, Mode: mixer.ConfConf}))
	}
	f.setRx(0, 64)
	f.setRx(1, 32)
	ticks(m, 2)
	assert.Equal(t, 1, m.Conferences())

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{}))
	_, ok := m.ConferenceSum(5)
	assert.True(t, ok, "still referenced by channel 2")

	require.NoError(t, m.SetConf(2, mixer.ConfSpec{}))
	_, ok = m.ConferenceSum(5)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Conferences())

	c, err := m.OpenPseudo()
	require.NoError(t, err)
	require.NoError(t, m.SetConf(c.Number(), mixer.ConfSpec{Number: 5, Mode: mixer.ConfConfMonitor}))
	sum, ok := m.ConferenceSum(5)
	require.True(t, ok)
	assert.Equal(t, constLin(0), sum)

	m.Tick()
	sum, _ = m.ConferenceSum(5)
	assert.Equal(t, constLin(0), sum)
}

func TestMonitorOfSameNumberReleasesConference(t *testing.T) {
	m, _ := newSpanMixer(t, 2)

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 2, Mode: mixer.ConfConf}))
	assert.Equal(t, 1, m.Conferences())

	// Channel 2 shares its number with the conference channel 1 leaves.
	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 2, Mode: mixer.ConfMonitor}))
	assert.Equal(t, 0, m.Conferences())
	_, ok := m.ConferenceSum(2)
	assert.False(t, ok)

	spec, err := m.Conf(1)
	require.NoError(t, err)
	assert.Equal(t, mixer.ConfSpec{Number: 2, Mode: mixer.ConfMonitor}, spec)

	// Going back reuses the freed alias slot.
	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 2, Mode: mixer.ConfConf}))
	assert.Equal(t, 1, m.Conferences())
}

func TestCloseReleasesConference(t *testing.T) {
	m, _ := newSpanMixer(t, 1)
	c, err := m.OpenPseudo()
	require.NoError(t, err)
	require.NoError(t, m.SetConf(c.Number(), mixer.ConfSpec{Number: 12, Mode: mixer.ConfConf}))
	assert.Equal(t, 1, m.Conferences())

	require.NoError(t, m.Close(c.Number()))
	assert.Equal(t, 0, m.Conferences())
	_, err = m.Conf(c.Number())
	assert.ErrorIs(t, err, mixer.ErrNoChannel)
}

func TestConfAutoPicksHighestFree(t *testing.T) {
	m, _ := newSpanMixer(t, 2)

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: mixer.ConfAuto, Mode: mixer.ConfConf}))
	spec, err := m.Conf(1)
	require.NoError(t, err)
	assert.Equal(t, 64, spec.Number)

	require.NoError(t, m.SetConf(2, mixer.ConfSpec{Number: mixer.ConfAuto, Mode: mixer.ConfConf}))
	spec, err = m.Conf(2)
	require.NoError(t, err)
	assert.Equal(t, 63, spec.Number)
}

func TestPseudoTalkerReachesRealListener(t *testing.T) {
	m, f := newSpanMixer(t, 1)
	p, err := m.OpenPseudo()
	require.NoError(t, err)

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 2, Mode: mixer.ConfConf}))
	require.NoError(t, m.SetConf(p.Number(), mixer.ConfSpec{Number: 2, Mode: mixer.ConfConf}))

	writeBlock(t, p, constRaw(audio.MuLaw, 64, testBlock))
	m.Tick()
	assert.Equal(t, constLin(64), f.txLin(0), "heard in the same tick")

	m.Tick()
	heard := decode(audio.MuLaw, readBlock(t, p))
	assert.Equal(t, append(constLin(0), constLin(0)...), heard, "the pseudo talker does not hear itself")
}

func TestConfMute(t *testing.T) {
	m, f := newSpanMixer(t, 2)
	for ch := 1; ch <= 2; ch++ {
		require.NoError(t, m.SetConf(ch, mixer.ConfSpec{Number: 5, Mode: mixer.ConfConf}))
	}
	require.NoError(t, m.SetConfMute(1, true))
	muted, err := m.ConfMute(1)
	require.NoError(t, err)
	assert.True(t, muted)

	f.setRx(0, 64)
	f.setRx(1, 32)
	m.Tick()

	sum, _ := m.ConferenceSum(5)
	assert.Equal(t, constLin(32), sum)
	assert.Equal(t, constLin(0), f.txLin(1), "the muted talker is not heard")
	assert.Equal(t, constLin(32), f.txLin(0), "but still listens")
}

func TestConferenceLinks(t *testing.T) {
	m, f := newSpanMixer(t, 1)
	l, err := m.OpenPseudo()
	require.NoError(t, err)

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 5, Mode: mixer.ConfConf}))
	require.NoError(t, m.SetConf(l.Number(), mixer.ConfSpec{Number: 6, Mode: mixer.ConfConfMonitor}))
	require.NoError(t, m.ConfLink(5, 6))

	f.setRx(0, 64)
	ticks(m, 2)
	assert.Equal(t, append(constLin(64), constLin(64)...), decode(audio.MuLaw, readBlock(t, l)))

	assert.True(t, m.ConfUnlink(5, 6))
	assert.False(t, m.ConfUnlink(5, 6))
	ticks(m, 2)
	assert.Equal(t, append(constLin(0), constLin(0)...), decode(audio.MuLaw, readBlock(t, l)))

	require.NoError(t, m.ConfLink(5, 6))
	assert.True(t, m.ConfUnlink(0, 0))
}

func TestRealAndPseudo(t *testing.T) {
	m, f := newSpanMixer(t, 2)
	a, err := m.Open(1)
	require.NoError(t, err)

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 7, Mode: mixer.ConfRealAndPseudo}))
	require.NoError(t, m.SetConf(2, mixer.ConfSpec{Number: 7, Mode: mixer.ConfConf}))

	f.setRx(0, 64)
	f.setRx(1, 32)
	for i := 0; i < 3; i++ {
		writeBlock(t, a, constRaw(audio.MuLaw, 16, testBlock))
	}
	ticks(m, 6)

	// Line 2 hears line 1 plus the announced application stream.
	assert.Equal(t, constLin(80), f.txLin(1))
	// Line 1 hears line 2 plus its own application stream.
	assert.Equal(t, constLin(48), f.txLin(0))

	// The application hears the whole conference except itself.
	var last []byte
	for i := 0; i < 3; i++ {
		last = readBlock(t, a)
	}
	assert.Equal(t, append(constLin(96), constLin(96)...), decode(audio.MuLaw, last))
}

func TestRealAndPseudoRejectedOnPseudo(t *testing.T) {
	m, _ := newSpanMixer(t, 1)
	p, err := m.OpenPseudo()
	require.NoError(t, err)
	assert.ErrorIs(t, m.SetConf(p.Number(), mixer.ConfSpec{Number: 1, Mode: mixer.ConfRealAndPseudo}), mixer.ErrInvalidMode)
}

func TestAnnounce(t *testing.T) {
	m, f := newSpanMixer(t, 2)
	a, err := m.Open(1)
	require.NoError(t, err)

	require.NoError(t, m.SetConf(1, mixer.ConfSpec{Number: 4, Mode: mixer.ConfAnnounce}))
	require.NoError(t, m.SetConf(2, mixer.ConfSpec{Number: 4, Mode: mixer.ConfConf}))

	writeBlock(t, a, constRaw(audio.MuLaw, 24, testBlock))
	m.Tick()
	assert.Equal(t, constLin(0), f.txLin(1), "announcements land in the next generation")
	m.Tick()
	assert.Equal(t, constLin(24), f.txLin(1))
}

func TestRotationAdvancesOncePerTick(t *testing.T) {
	m, _ := newSpanMixer(t, 1)
	ticks(m, 5)
	assert.Equal(t, uint64(5), m.Ticks())
}
