package cmds

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"homelab-epg/config"
	"homelab-epg/epg"
	"homelab-epg/fetch"
	"homelab-epg/lineup"
	"homelab-epg/metrics"
	"homelab-epg/sources/ota"
)

// commonFlags are shared by every generator subcommand.
type commonFlags struct {
	configPath string
	output     string
}

func (f *commonFlags) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&f.configPath, "config", "c", "", "Path to the ini config file.")
	flags.StringVarP(&f.output, "output", "o", "", "Path of the XMLTV file to write; a .gz suffix compresses it.")
}

// runEnv holds what one generator run needs.
type runEnv struct {
	cfg      *config.Config
	table    *lineup.Table
	loc      *time.Location
	recorder *metrics.Recorder
	fallback *ota.Source
	output   string
}

func newRunEnv(source string, f *commonFlags, requireConfig bool) (*runEnv, error) {
	cfg, err := config.Load(source, f.configPath, requireConfig)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	table, err := lineup.Load(cfg.LineupFile)
	if err != nil {
		return nil, err
	}
	fallback, err := ota.New(table, loc)
	if err != nil {
		return nil, err
	}
	return &runEnv{
		cfg:      cfg,
		table:    table,
		loc:      loc,
		recorder: metrics.New(),
		fallback: fallback,
		output:   f.output,
	}, nil
}

func (e *runEnv) client(opts ...fetch.Option) *fetch.Client {
	return fetch.New(append([]fetch.Option{fetch.WithObserver(e.recorder)}, opts...)...)
}

func (e *runEnv) generator(keepUnmapped bool) *epg.Generator {
	return epg.NewGenerator(epg.Options{
		Output:         e.output,
		Lineup:         e.table,
		KeepUnmapped:   keepUnmapped,
		Lang:           e.cfg.Lang,
		HistoricalDays: e.cfg.HistoricalGuideDays,
		Fallback:       e.fallback,
		Recorder:       e.recorder,
	})
}

// run generates the guide from src and reports the result.
func (e *runEnv) run(cmd *cobra.Command, src epg.Source, keepUnmapped bool) error {
	res, err := e.generator(keepUnmapped).Run(cmd.Context(), src)
	if err != nil {
		return err
	}
	return e.done(res)
}

func (e *runEnv) done(res *epg.Result) error {
	logger := zap.L()
	if res.Kind == epg.Fallback {
		logger.Warn("Guide contains fallback data.", zap.String("reason", res.Reason))
	}
	if metricsFile == "" {
		return nil
	}
	if err := e.recorder.WriteTextfile(metricsFile); err != nil {
		logger.Error("Failed to write metrics.", zap.String("path", metricsFile), zap.Error(err))
		return err
	}
	return nil
}
