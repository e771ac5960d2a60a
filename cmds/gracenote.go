package cmds

import (
	"time"

	"github.com/spf13/cobra"

	"homelab-epg/consts"
	"homelab-epg/fetch"
	"homelab-epg/sources/gracenote"
)

func NewGracenoteCLI() *cobra.Command {
	var (
		flags   commonFlags
		baseURL string
	)

	gracenoteCmd := &cobra.Command{
		Use:   "gracenote",
		Short: "Scrape tvlistings.gracenote.com for the configured zip code.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newRunEnv("gracenote", &flags, false)
			if err != nil {
				return err
			}
			src := gracenote.New(env.client(fetch.WithInterval(2*time.Second)), env.cfg.ZipCode)
			src.BaseURL = baseURL
			return env.run(cmd, src, true)
		},
	}

	flags.bind(gracenoteCmd.Flags())
	gracenoteCmd.Flags().StringVar(&baseURL, "base-url", consts.GRACENOTE_URL, "Gracenote listings site.")
	_ = gracenoteCmd.Flags().MarkHidden("base-url")
	_ = gracenoteCmd.MarkFlagRequired("output")

	return gracenoteCmd
}
