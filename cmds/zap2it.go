package cmds

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"homelab-epg/consts"
	"homelab-epg/sources/zap2it"
)

const providerFormat = "%-15s|%-40s|%-15s|%-15s|%-25s|%-15s\n"

func NewZap2itCLI() *cobra.Command {
	var (
		flags   commonFlags
		baseURL string
		test    bool
		findID  bool
	)

	zap2itCmd := &cobra.Command{
		Use:   "zap2it",
		Short: "Build a guide from the Zap2it grid API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.L()

			if flags.output == "" && !findID {
				return errors.New(`required flag(s) "output" not set`)
			}
			env, err := newRunEnv("zap2it", &flags, !test)
			if err != nil {
				return err
			}
			src := zap2it.New(env.client(), env.cfg)
			src.BaseURL = baseURL

			if findID {
				providers, err := src.FindProviders(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, providerFormat, "type", "name", "location", "headendID", "lineupId", "device")
				for _, p := range providers {
					fmt.Fprintf(out, providerFormat, p.Type, p.Name, p.Location, p.HeadendID, p.LineupID, p.Device)
				}
				logger.Info("Set lineup.headendId, lineup.lineupId and lineup.device from one of these rows.")
				return nil
			}

			if test {
				res, err := env.generator(true).RunFallback(cmd.Context(), src, "test mode")
				if err != nil {
					return err
				}
				return env.done(res)
			}
			return env.run(cmd, src, true)
		},
	}

	flags.bind(zap2itCmd.Flags())
	zap2itCmd.Flags().StringVar(&baseURL, "base-url", consts.ZAP2IT_URL, "Zap2it listings site.")
	zap2itCmd.Flags().BoolVar(&test, "test", false, "Skip the network and write sample data.")
	zap2itCmd.Flags().BoolVar(&findID, "find-id", false, "List the providers available for the configured zip code.")
	_ = zap2itCmd.Flags().MarkHidden("base-url")

	return zap2itCmd
}
