package cmds

import (
	"github.com/spf13/cobra"

	"homelab-epg/epg"
)

func NewOTACLI() *cobra.Command {
	var (
		flags        commonFlags
		channelsOnly bool
	)

	otaCmd := &cobra.Command{
		Use:   "ota",
		Short: "Write a synthetic over-the-air guide for the lineup.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newRunEnv("ota", &flags, false)
			if err != nil {
				return err
			}
			gen := epg.NewGenerator(epg.Options{
				Output:         env.output,
				Lineup:         env.table,
				ChannelsOnly:   channelsOnly,
				Lang:           env.cfg.Lang,
				HistoricalDays: env.cfg.HistoricalGuideDays,
				Fallback:       env.fallback,
				Recorder:       env.recorder,
			})
			res, err := gen.RunFallback(cmd.Context(), env.fallback, "synthetic over-the-air schedule")
			if err != nil {
				return err
			}
			return env.done(res)
		},
	}

	flags.bind(otaCmd.Flags())
	otaCmd.Flags().BoolVar(&channelsOnly, "channels-only", false, "Write channel definitions without programmes.")
	_ = otaCmd.MarkFlagRequired("output")

	return otaCmd
}
