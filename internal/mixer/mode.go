package mixer

import (
	"fmt"
	"strings"
)

// ConfMode selects how a channel takes part in conferencing. The numeric
// values are part of the configuration contract.
type ConfMode int

const (
	ConfNormal ConfMode = iota
	ConfMonitor
	ConfMonitorTx
	ConfMonitorBoth
	ConfConf
	ConfAnnounce
	ConfConfMonitor
	ConfAnnounceMonitor
	ConfRealAndPseudo
	ConfDigitalMonitor
	ConfMonitorRxPreEcho
	ConfMonitorTxPreEcho
	ConfMonitorBothPreEcho
)

var confModeNames = [...]string{
	ConfNormal:             "normal",
	ConfMonitor:            "monitor",
	ConfMonitorTx:          "monitor_tx",
	ConfMonitorBoth:        "monitor_both",
	ConfConf:               "conf",
	ConfAnnounce:           "conf_announce",
	ConfConfMonitor:        "conf_monitor",
	ConfAnnounceMonitor:    "conf_announce_monitor",
	ConfRealAndPseudo:      "real_and_pseudo",
	ConfDigitalMonitor:     "digital_monitor",
	ConfMonitorRxPreEcho:   "monitor_rx_pre_echo",
	ConfMonitorTxPreEcho:   "monitor_tx_pre_echo",
	ConfMonitorBothPreEcho: "monitor_both_pre_echo",
}

func (m ConfMode) String() string {
	if m.Valid() {
		return confModeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Valid reports whether m is a known mode.
func (m ConfMode) Valid() bool {
	return m >= ConfNormal && int(m) < len(confModeNames)
}

// IsConference reports whether the mode's number names a conference bus.
func (m ConfMode) IsConference() bool {
	return m >= ConfConf && m <= ConfRealAndPseudo
}

// IsMonitor reports whether the mode's number names a monitored channel.
func (m ConfMode) IsMonitor() bool {
	switch m {
	case ConfMonitor, ConfMonitorTx, ConfMonitorBoth, ConfDigitalMonitor,
		ConfMonitorRxPreEcho, ConfMonitorTxPreEcho, ConfMonitorBothPreEcho:
		return true
	}
	return false
}

// PreEcho reports whether the mode takes the rx stream from the monitored
// channel's pre echo cancellation snapshot.
func (m ConfMode) PreEcho() bool {
	return m >= ConfMonitorRxPreEcho && m <= ConfMonitorBothPreEcho
}

func (m ConfMode) monitorsRx() bool {
	switch m {
	case ConfMonitor, ConfMonitorBoth, ConfMonitorRxPreEcho, ConfMonitorBothPreEcho:
		return true
	}
	return false
}

func (m ConfMode) monitorsTx() bool {
	switch m {
	case ConfMonitorTx, ConfMonitorBoth, ConfMonitorTxPreEcho, ConfMonitorBothPreEcho:
		return true
	}
	return false
}

// DefaultFlags returns the flags a conference mode gets when none are given.
func (m ConfMode) DefaultFlags() ConfFlag {
	switch m {
	case ConfConf, ConfAnnounce, ConfAnnounceMonitor:
		return FlagTalker | FlagListener
	case ConfConfMonitor:
		return FlagListener
	case ConfRealAndPseudo:
		return FlagTalker | FlagListener | FlagPseudoTalker | FlagPseudoListener
	}
	return 0
}

// ParseConfMode maps a configuration name to a mode.
func ParseConfMode(s string) (ConfMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return ConfNormal, nil
	}
	for m, n := range confModeNames {
		if n == name {
			return ConfMode(m), nil
		}
	}
	return ConfNormal, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// ConfFlag refines a conference mode.
type ConfFlag int

const (
	FlagListener       ConfFlag = 0x100
	FlagTalker         ConfFlag = 0x200
	FlagPseudoListener ConfFlag = 0x400
	FlagPseudoTalker   ConfFlag = 0x800

	flagMask = FlagListener | FlagTalker | FlagPseudoListener | FlagPseudoTalker
)

var confFlagNames = []struct {
	flag ConfFlag
	name string
}{
	{FlagListener, "listener"},
	{FlagTalker, "talker"},
	{FlagPseudoListener, "pseudo_listener"},
	{FlagPseudoTalker, "pseudo_talker"},
}

// Has reports whether every bit of g is set in f.
func (f ConfFlag) Has(g ConfFlag) bool { return f&g == g }

func (f ConfFlag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range confFlagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if rest := f &^ flagMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", int(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseConfFlags maps configuration names to a flag set.
func ParseConfFlags(names []string) (ConfFlag, error) {
	var f ConfFlag
	for _, s := range names {
		name := strings.ToLower(strings.TrimSpace(s))
		found := false
		for _, n := range confFlagNames {
			if n.name == name {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown flag %q", ErrInvalidMode, s)
		}
	}
	return f, nil
}

// ConfAuto as a conference number selects the highest conference number
// without an alias.
const ConfAuto = -1

// ConfSpec is a channel's conference linkage. Number is a conference number
// for conference modes and a channel number for monitor modes; it is zero
// exactly when Mode is ConfNormal.
type ConfSpec struct {
	Number int
	Mode   ConfMode
	Flags  ConfFlag
}

func (s ConfSpec) String() string {
	return fmt.Sprintf("%s(%d, %s)", s.Mode, s.Number, s.Flags)
}
