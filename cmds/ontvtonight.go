package cmds

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"homelab-epg/consts"
	"homelab-epg/epg"
	"homelab-epg/fetch"
	"homelab-epg/sources/ontvtonight"
)

func NewOnTVTonightCLI() *cobra.Command {
	var (
		flags    commonFlags
		baseURL  string
		username string
		password string
		region   string
		date     string
		discover bool
	)

	ontvtonightCmd := &cobra.Command{
		Use:   "ontvtonight",
		Short: "Scrape the OnTVTonight regional guide.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.L()

			env, err := newRunEnv("ontvtonight", &flags, false)
			if err != nil {
				return err
			}
			src := ontvtonight.New(env.client(fetch.WithInterval(time.Second)), env.table, env.loc)
			src.BaseURL = baseURL
			src.Region = region
			src.Username, src.Password = env.cfg.Username, env.cfg.Password
			if username != "" {
				src.Username = username
			}
			if password != "" {
				src.Password = password
			}
			if date != "" {
				day, err := time.ParseInLocation("2006-01-02", date, env.loc)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				src.Date = day
			}

			if discover {
				report, err := src.Discover(cmd.Context())
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				if err := epg.Write(flags.output, data); err != nil {
					logger.Error("Failed to write discovery report.", zap.Error(err))
					return err
				}
				logger.Sugar().Infof("Probed %d endpoints, %d answered; report written to %s.",
					len(report.Endpoints), len(report.Working()), flags.output)
				return nil
			}
			return env.run(cmd, src, false)
		},
	}

	flags.bind(ontvtonightCmd.Flags())
	f := ontvtonightCmd.Flags()
	f.StringVar(&baseURL, "base-url", consts.ONTVTONIGHT_URL, "OnTVTonight site.")
	f.StringVarP(&username, "username", "u", "", "Account username or email; overrides creds.username.")
	f.StringVarP(&password, "password", "p", "", "Account password; overrides creds.password.")
	f.StringVarP(&region, "region", "r", consts.DEFAULT_REGION, "Guide region id.")
	f.StringVarP(&date, "date", "d", "", "Guide date as YYYY-MM-DD; defaults to today.")
	f.BoolVar(&discover, "discover", false, "Probe for guide API endpoints and write a JSON report instead of XMLTV.")
	_ = f.MarkHidden("base-url")
	_ = ontvtonightCmd.MarkFlagRequired("output")

	return ontvtonightCmd
}
