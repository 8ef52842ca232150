package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Raikerian/go-tdmmix/internal/chanbuf"
	"github.com/Raikerian/go-tdmmix/internal/mixer"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration and print its plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := mixer.ParamsFromConfig(cfg); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SPAN\tTYPE\tCHANNELS\tLAW")
		for _, sp := range cfg.Spans {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", sp.Name, sp.Type, sp.Channels, orDefault(sp.Law))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "CHANNEL\tMODE\tNUMBER\tFLAGS")
		for _, ch := range cfg.Conferences.Channels {
			mode, err := mixer.ParseConfMode(ch.Mode)
			if err != nil {
				return fmt.Errorf("channel %d: %w", ch.Channel, err)
			}
			flags, err := mixer.ParseConfFlags(ch.Flags)
			if err != nil {
				return fmt.Errorf("channel %d: %w", ch.Channel, err)
			}
			if flags == 0 {
				flags = mode.DefaultFlags()
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", ch.Channel, mode, ch.Number, flags)
		}
		for _, l := range cfg.Conferences.Links {
			fmt.Fprintf(w, "link\t%d -> %d\t\t\n", l.Src, l.Dst)
		}
		return w.Flush()
	},
}

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List conference modes and flags",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for m := mixer.ConfNormal; m.Valid(); m++ {
			kind := "-"
			switch {
			case m.IsConference():
				kind = "conference"
			case m.IsMonitor():
				kind = "monitor"
			}
			fmt.Printf("%-2d %-22s %-10s %s\n", int(m), m, kind, m.DefaultFlags())
		}
		names := make([]string, 0, 4)
		for _, f := range []mixer.ConfFlag{mixer.FlagListener, mixer.FlagTalker, mixer.FlagPseudoListener, mixer.FlagPseudoTalker} {
			names = append(names, f.String())
		}
		fmt.Println("flags:", strings.Join(names, ", "))
		fmt.Println("policies:", chanbuf.PolicyImmediate, chanbuf.PolicyWhenFull, chanbuf.PolicyHalfFull)
	},
}

func orDefault(s string) string {
	if s == "" {
		return "default"
	}
	return s
}
