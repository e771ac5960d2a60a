package cmds

import (
	"github.com/spf13/cobra"

	"homelab-epg/consts"
	"homelab-epg/fetch"
	"homelab-epg/sources/tvmaze"
)

func NewTVMazeCLI() *cobra.Command {
	var (
		flags   commonFlags
		baseURL string
	)

	tvmazeCmd := &cobra.Command{
		Use:   "tvmaze",
		Short: "Build a guide from the TVMaze US schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newRunEnv("tvmaze", &flags, false)
			if err != nil {
				return err
			}
			src := tvmaze.New(env.client(fetch.WithUserAgent(consts.UA_POLITE)), env.loc)
			src.BaseURL = baseURL
			return env.run(cmd, src, true)
		},
	}

	flags.bind(tvmazeCmd.Flags())
	tvmazeCmd.Flags().StringVar(&baseURL, "base-url", consts.TVMAZE_URL, "TVMaze API root.")
	_ = tvmazeCmd.Flags().MarkHidden("base-url")
	_ = tvmazeCmd.MarkFlagRequired("output")

	return tvmazeCmd
}
