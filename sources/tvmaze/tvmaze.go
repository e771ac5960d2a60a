// Package tvmaze reads the national US schedule from the TVMaze REST API.
package tvmaze

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"homelab-epg/consts"
	"homelab-epg/epg"
	"homelab-epg/fetch"
	"homelab-epg/xmltv"
)

const defaultRuntime = 30

type network struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type show struct {
	Name       string   `json:"name"`
	Summary    string   `json:"summary"`
	Network    *network `json:"network"`
	WebChannel *network `json:"webChannel"`
}

type episode struct {
	Name     string `json:"name"`
	Season   int    `json:"season"`
	Number   int    `json:"number"`
	Airstamp string `json:"airstamp"`
	Runtime  int    `json:"runtime"`
	Summary  string `json:"summary"`
	Show     show   `json:"show"`
}

type Source struct {
	BaseURL string
	Country string

	client *fetch.Client
	loc    *time.Location
	now    func() time.Time
}

func New(client *fetch.Client, loc *time.Location) *Source {
	if loc == nil {
		loc = time.Local
	}
	return &Source{
		BaseURL: consts.TVMAZE_URL,
		Country: "US",
		client:  client,
		loc:     loc,
		now:     time.Now,
	}
}

func (s *Source) Name() string {
	return "tvmaze"
}

func (s *Source) SourceInfo() xmltv.SourceInfo {
	return xmltv.SourceInfo{Name: "TVMaze API", URL: s.BaseURL}
}

// Fetch reads today's schedule, or tomorrow's if today is unavailable.
func (s *Source) Fetch(ctx context.Context) ([]epg.ChannelSchedule, error) {
	today := s.now().In(s.loc)
	episodes, err := s.schedule(ctx, today)
	if err != nil || len(episodes) == 0 {
		zap.L().Info("Today's TVMaze schedule unavailable, trying tomorrow.", zap.Error(err))
		if episodes, err = s.schedule(ctx, today.AddDate(0, 0, 1)); err != nil {
			return nil, err
		}
	}
	if len(episodes) == 0 {
		return nil, fmt.Errorf("tvmaze: %w", epg.ErrNoData)
	}
	return convert(episodes), nil
}

func (s *Source) schedule(ctx context.Context, day time.Time) ([]episode, error) {
	var episodes []episode
	err := s.client.JSON(ctx, fetch.Request{
		URL: strings.TrimRight(s.BaseURL, "/") + "/schedule",
		Query: url.Values{
			"country": {s.Country},
			"date":    {day.Format("2006-01-02")},
		},
	}, &episodes)
	if err != nil {
		return nil, fmt.Errorf("tvmaze schedule %s: %w", day.Format("2006-01-02"), err)
	}
	return episodes, nil
}

func convert(episodes []episode) []epg.ChannelSchedule {
	var schedules []epg.ChannelSchedule
	index := make(map[string]int)
	for _, e := range episodes {
		start, err := xmltv.ParseTime(e.Airstamp)
		if err != nil {
			zap.L().Debug("Skipping episode without airstamp.", zap.String("show", e.Show.Name), zap.Error(err))
			continue
		}
		id, name := channelOf(e.Show)
		i, ok := index[id]
		if !ok {
			i = len(schedules)
			index[id] = i
			schedules = append(schedules, epg.ChannelSchedule{
				Labels:       []string{name},
				ID:           id,
				DisplayNames: []string{name},
			})
		}

		runtime := e.Runtime
		if runtime <= 0 {
			runtime = defaultRuntime
		}
		desc := e.Summary
		if desc == "" {
			desc = e.Show.Summary
		}
		schedules[i].Listings = append(schedules[i].Listings, epg.Listing{
			Start:       start,
			Stop:        start.Add(time.Duration(runtime) * time.Minute),
			Title:       title(e),
			Description: plainText(desc),
		})
	}
	return schedules
}

func channelOf(sh show) (string, string) {
	n := sh.Network
	if n == nil {
		n = sh.WebChannel
	}
	if n == nil || n.Name == "" {
		return "unknown", "Unknown Network"
	}
	if n.ID == 0 {
		return strings.ReplaceAll(strings.ToLower(n.Name), " ", "-"), n.Name
	}
	return strconv.Itoa(n.ID), n.Name
}

// title renders "Show: Episode (S01E02)".
func title(e episode) string {
	t := e.Show.Name
	if t == "" {
		t = "Unknown Show"
	}
	if e.Name != "" && e.Name != e.Show.Name {
		t += ": " + e.Name
	}
	if e.Season > 0 && e.Number > 0 {
		t += fmt.Sprintf(" (S%02dE%02d)", e.Season, e.Number)
	}
	return t
}

// plainText strips markup from TVMaze's HTML summaries.
func plainText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
