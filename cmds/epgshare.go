package cmds

import (
	"github.com/spf13/cobra"

	"homelab-epg/consts"
	"homelab-epg/sources/epgshare"
)

func NewEPGShareCLI() *cobra.Command {
	var (
		flags   commonFlags
		baseURL string
	)

	epgshareCmd := &cobra.Command{
		Use:   "epgshare",
		Short: "Filter the EPGShare US feeds down to the lineup.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newRunEnv("epgshare", &flags, false)
			if err != nil {
				return err
			}
			src := epgshare.New(env.client(), env.table)
			src.BaseURL = baseURL
			return env.run(cmd, src, false)
		},
	}

	flags.bind(epgshareCmd.Flags())
	epgshareCmd.Flags().StringVar(&baseURL, "base-url", consts.EPGSHARE_URL, "Directory holding the EPGShare feeds.")
	_ = epgshareCmd.Flags().MarkHidden("base-url")
	_ = epgshareCmd.MarkFlagRequired("output")

	return epgshareCmd
}
