// Package epg turns source schedules into XMLTV guide files. A Generator
// fetches from a Source, falls back to sample data when the source fails,
// maps channels onto the local lineup and writes the result atomically.
package epg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"homelab-epg/lineup"
	"homelab-epg/xmltv"
)

type Listing struct {
	Start       time.Time
	Stop        time.Time
	Title       string
	SubTitle    string
	Description string
	Length      time.Duration
}

// ChannelSchedule is what a source extracts for one channel. Labels are tried
// in order against the lineup; ID is used when the channel is unmapped and
// unmapped channels are kept.
type ChannelSchedule struct {
	Labels       []string
	ID           string
	DisplayNames []string
	Listings     []Listing
}

type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]ChannelSchedule, error)
}

// Describer is implemented by sources that publish source-info attributes.
type Describer interface {
	SourceInfo() xmltv.SourceInfo
}

type Kind int

const (
	Live Kind = iota
	Fallback
)

func (k Kind) String() string {
	if k == Fallback {
		return "fallback"
	}
	return "live"
}

// Result reports what a run wrote.
type Result struct {
	Kind       Kind
	Reason     string
	Output     string
	Channels   int
	Programmes int
	Skipped    int
}

// RunRecorder receives run statistics.
type RunRecorder interface {
	ObserveRun(source string, channels, programmes int, fallback bool, at time.Time)
}

type Options struct {
	Output string
	Lineup *lineup.Table
	// KeepUnmapped writes channels the lineup does not know under their
	// source id instead of dropping them.
	KeepUnmapped   bool
	ChannelsOnly   bool
	Lang           string
	HistoricalDays int
	// Fallback supplies data when the primary source fails.
	Fallback Source
	Recorder RunRecorder
	Now      func() time.Time
}

type Generator struct {
	opts Options
}

func NewGenerator(opts Options) *Generator {
	if opts.Lineup == nil {
		opts.Lineup = lineup.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Generator{opts: opts}
}

// Run fetches src and writes the guide. A source failure is replaced by
// fallback data and reported in the Result, not as an error.
func (g *Generator) Run(ctx context.Context, src Source) (*Result, error) {
	logger := zap.L().With(zap.String("source", src.Name()))

	schedules, err := src.Fetch(ctx)
	if err == nil && len(schedules) == 0 {
		err = fmt.Errorf("%s: %w", src.Name(), ErrNoData)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Source failed, using fallback data.", zap.String("class", Classify(err)), zap.Error(err))
		return g.fallback(ctx, src, Classify(err)+": "+err.Error())
	}

	b, res, err := g.Build(src, schedules)
	if err != nil {
		return nil, err
	}
	if !g.opts.ChannelsOnly && b.ProgrammeCount() == 0 {
		err := fmt.Errorf("%s: %w for lineup channels", src.Name(), ErrNoData)
		logger.Warn("No programmes matched the lineup, using fallback data.", zap.Error(err))
		return g.fallback(ctx, src, Classify(err)+": "+err.Error())
	}
	return g.finish(src, b, res)
}

// RunFallback writes fallback data without consulting src, which only
// supplies the source-info attributes.
func (g *Generator) RunFallback(ctx context.Context, src Source, reason string) (*Result, error) {
	return g.fallback(ctx, src, reason)
}

func (g *Generator) fallback(ctx context.Context, src Source, reason string) (*Result, error) {
	if g.opts.Fallback == nil {
		return nil, fmt.Errorf("%s failed and no fallback is configured: %s", src.Name(), reason)
	}
	schedules, err := g.opts.Fallback.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fallback %s: %w", g.opts.Fallback.Name(), err)
	}
	b, res, err := g.Build(src, schedules)
	if err != nil {
		return nil, err
	}
	b.MarkFallback(reason)
	res.Kind = Fallback
	res.Reason = reason
	return g.finish(src, b, res)
}

// Build maps schedules onto the lineup and assembles the document.
// Duplicate listings (same channel, start and title) are dropped; listings
// the builder rejects are skipped and counted.
func (g *Generator) Build(src Source, schedules []ChannelSchedule) (*xmltv.Builder, *Result, error) {
	logger := zap.L().With(zap.String("source", src.Name()))

	info := xmltv.SourceInfo{Name: src.Name(), Lang: g.opts.Lang}
	if d, ok := src.(Describer); ok {
		info = d.SourceInfo()
		if info.Lang == "" {
			info.Lang = g.opts.Lang
		}
	}
	b := xmltv.NewBuilder(info)
	res := &Result{Kind: Live, Output: g.opts.Output}

	type key struct {
		channel string
		start   int64
		title   string
	}
	seen := make(map[key]bool)
	unmapped := 0

	for _, sched := range schedules {
		id, names := g.resolve(sched)
		if id == "" {
			unmapped++
			continue
		}
		if err := b.AddChannel(id, names...); err != nil {
			return nil, nil, fmt.Errorf("channel %s: %w", id, err)
		}
		if g.opts.ChannelsOnly {
			continue
		}
		for _, l := range sched.Listings {
			k := key{id, l.Start.Unix(), strings.ToLower(strings.TrimSpace(l.Title))}
			if seen[k] {
				continue
			}
			seen[k] = true
			err := b.AddProgramme(xmltv.Airing{
				Channel:     id,
				Start:       l.Start,
				Stop:        l.Stop,
				Title:       l.Title,
				SubTitle:    l.SubTitle,
				Description: l.Description,
				Length:      l.Length,
			})
			if err != nil {
				res.Skipped++
				logger.Debug("Skipping listing.", zap.String("channel", id), zap.Error(err))
			}
		}
	}
	if unmapped > 0 {
		logger.Info("Dropped channels missing from the lineup.", zap.Int("count", unmapped))
	}
	if res.Skipped > 0 {
		logger.Warn("Skipped invalid listings.", zap.Int("count", res.Skipped))
	}
	res.Channels = b.ChannelCount()
	res.Programmes = b.ProgrammeCount()
	return b, res, nil
}

func (g *Generator) resolve(sched ChannelSchedule) (string, []string) {
	labels := sched.Labels
	if len(labels) == 0 {
		labels = append([]string{sched.ID}, sched.DisplayNames...)
	}
	ch := g.opts.Lineup.LookupAny(labels...)
	if ch.Mapped() {
		return ch.ID, append(ch.DisplayNames(), sched.DisplayNames...)
	}
	if !g.opts.KeepUnmapped || strings.TrimSpace(sched.ID) == "" {
		return "", nil
	}
	names := sched.DisplayNames
	if len(names) == 0 {
		names = []string{sched.ID}
	}
	return sched.ID, names
}

func (g *Generator) finish(src Source, b *xmltv.Builder, res *Result) (*Result, error) {
	data, err := b.Serialize()
	if err != nil {
		return nil, err
	}
	if err := Write(g.opts.Output, data); err != nil {
		return nil, err
	}
	now := g.opts.Now()
	if g.opts.HistoricalDays > 0 {
		if err := KeepHistory(g.opts.Output, g.opts.HistoricalDays, now); err != nil {
			return nil, err
		}
	}
	if g.opts.Recorder != nil {
		g.opts.Recorder.ObserveRun(src.Name(), res.Channels, res.Programmes, res.Kind == Fallback, now)
	}
	zap.L().Info("Guide written.",
		zap.String("source", src.Name()),
		zap.String("output", g.opts.Output),
		zap.Stringer("kind", res.Kind),
		zap.Int("channels", res.Channels),
		zap.Int("programmes", res.Programmes))
	return res, nil
}

// Classify names the failure class of err for logs and fallback comments.
func Classify(err error) string {
	var status interface{ HTTPStatus() int }
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.As(err, &status):
		return fmt.Sprintf("http %d", status.HTTPStatus())
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrNoData):
		return "no data"
	default:
		return "error"
	}
}
