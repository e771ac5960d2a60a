// Package zap2it reads the Zap2it/Gracenote grid API used by
// tvlistings.zap2it.com.
package zap2it

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"homelab-epg/config"
	"homelab-epg/consts"
	"homelab-epg/epg"
	"homelab-epg/fetch"
	"homelab-epg/xmltv"
)

// window is the span one grid request covers.
const window = 3 * time.Hour

type Source struct {
	BaseURL string
	// Span is how far ahead of the start time the guide reaches.
	Span time.Duration

	client    *fetch.Client
	cfg       *config.Config
	now       func() time.Time
	token     string
	headendID string
}

func New(client *fetch.Client, cfg *config.Config) *Source {
	return &Source{
		BaseURL: consts.ZAP2IT_URL,
		Span:    24 * time.Hour,
		client:  client,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *Source) Name() string {
	return "zap2it"
}

func (s *Source) SourceInfo() xmltv.SourceInfo {
	return xmltv.SourceInfo{Name: "zap2it", URL: s.BaseURL + "/", Lang: s.cfg.Lang}
}

type loginResponse struct {
	Token      string            `json:"token"`
	Properties map[string]string `json:"properties"`
}

// Authenticate logs in with the configured credentials and keeps the token
// for grid requests.
func (s *Source) Authenticate(ctx context.Context) error {
	var res loginResponse
	err := s.client.JSON(ctx, fetch.Request{
		URL: s.BaseURL + "/api/user/login",
		Form: url.Values{
			"emailid":        {s.cfg.Username},
			"password":       {s.cfg.Password},
			"isfacebookuser": {"false"},
			"usertype":       {"0"},
			"objectid":       {""},
		},
	}, &res)
	if err != nil {
		return fmt.Errorf("%w: zap2it login: %w", epg.ErrAuth, err)
	}
	if res.Token == "" {
		return fmt.Errorf("%w: zap2it login returned no token", epg.ErrAuth)
	}
	s.token = res.Token
	s.headendID = res.Properties["2004"]
	return nil
}

type gridResponse struct {
	Channels []gridChannel `json:"channels"`
}

type gridChannel struct {
	ChannelID     string      `json:"channelId"`
	ChannelNo     string      `json:"channelNo"`
	CallSign      string      `json:"callSign"`
	AffiliateName string      `json:"affiliateName"`
	Events        []gridEvent `json:"events"`
}

type gridEvent struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Duration  string `json:"duration"`
	Program   struct {
		Title        string `json:"title"`
		EpisodeTitle string `json:"episodeTitle"`
		ShortDesc    string `json:"shortDesc"`
	} `json:"program"`
}

func (s *Source) Fetch(ctx context.Context) ([]epg.ChannelSchedule, error) {
	if s.cfg.HasCredentials() {
		if err := s.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	var schedules []epg.ChannelSchedule
	index := make(map[string]int)
	start, end := s.guideTimes()
	for current := start; current.Before(end); current = current.Add(window) {
		grid, err := s.grid(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, ch := range grid.Channels {
			i, ok := index[ch.ChannelID]
			if !ok {
				i = len(schedules)
				index[ch.ChannelID] = i
				schedules = append(schedules, channelSchedule(ch))
			}
			schedules[i].Listings = append(schedules[i].Listings, listings(ch)...)
		}
	}
	if len(schedules) == 0 {
		return nil, fmt.Errorf("zap2it: %w", epg.ErrNoData)
	}
	return schedules, nil
}

// guideTimes starts at the current half hour.
func (s *Source) guideTimes() (time.Time, time.Time) {
	start := s.now().Truncate(30 * time.Minute)
	return start, start.Add(s.Span)
}

func (s *Source) grid(ctx context.Context, at time.Time) (*gridResponse, error) {
	lineupID := s.cfg.LineupID
	if lineupID == "" {
		lineupID = s.headendID
	}
	if lineupID == "" {
		lineupID = "USA-lineupId-DEFAULT"
	}
	headendID := s.cfg.HeadendID
	if headendID == "" {
		headendID = "lineupId"
	}

	zap.L().Debug("Loading guide window.", zap.Time("time", at))
	var grid gridResponse
	err := s.client.JSON(ctx, fetch.Request{
		URL: s.BaseURL + "/api/grid",
		Query: url.Values{
			"Activity_ID":  {"1"},
			"FromPage":     {"TV Guide"},
			"AffiliateId":  {"gapzap"},
			"token":        {s.token},
			"aid":          {"gapzap"},
			"lineupId":     {lineupID},
			"timespan":     {strconv.Itoa(int(window / time.Hour))},
			"headendId":    {headendID},
			"country":      {s.cfg.Country},
			"device":       {s.cfg.Device},
			"postalCode":   {s.cfg.ZipCode},
			"isOverride":   {"true"},
			"time":         {strconv.FormatInt(at.Unix(), 10)},
			"pref":         {"m,p"},
			"userId":       {"-"},
			"languagecode": {"en-us"},
		},
	}, &grid)
	if err != nil {
		return nil, fmt.Errorf("zap2it grid at %d: %w", at.Unix(), err)
	}
	return &grid, nil
}

func channelSchedule(ch gridChannel) epg.ChannelSchedule {
	var names []string
	if ch.ChannelNo != "" && ch.CallSign != "" {
		names = append(names, ch.ChannelNo+" "+ch.CallSign)
	}
	for _, n := range []string{ch.ChannelNo, ch.CallSign} {
		if n != "" {
			names = append(names, n)
		}
	}
	return epg.ChannelSchedule{
		Labels:       []string{ch.CallSign, ch.ChannelNo, ch.AffiliateName},
		ID:           ch.ChannelID,
		DisplayNames: names,
	}
}

func listings(ch gridChannel) []epg.Listing {
	var out []epg.Listing
	for _, e := range ch.Events {
		start, err := xmltv.ParseTime(e.StartTime)
		if err != nil {
			zap.L().Debug("Skipping event.", zap.String("channel", ch.ChannelID), zap.Error(err))
			continue
		}
		stop, err := xmltv.ParseTime(e.EndTime)
		if err != nil {
			zap.L().Debug("Skipping event.", zap.String("channel", ch.ChannelID), zap.Error(err))
			continue
		}
		l := epg.Listing{
			Start:       start,
			Stop:        stop,
			Title:       e.Program.Title,
			SubTitle:    e.Program.EpisodeTitle,
			Description: e.Program.ShortDesc,
		}
		if minutes, err := strconv.Atoi(strings.TrimSpace(e.Duration)); err == nil && minutes > 0 {
			l.Length = time.Duration(minutes) * time.Minute
		}
		out = append(out, l)
	}
	return out
}

type Provider struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	HeadendID string `json:"headendId"`
	LineupID  string `json:"lineupId"`
	Device    string `json:"device"`
}

// FindProviders lists the lineups available for the configured postal code.
func (s *Source) FindProviders(ctx context.Context) ([]Provider, error) {
	lang := s.cfg.Lang
	if lang == consts.DEFAULT_LANG {
		lang = "en-us"
	}
	var res struct {
		Providers []Provider `json:"Providers"`
	}
	err := s.client.JSON(ctx, fetch.Request{
		URL: fmt.Sprintf("%s/gapzap_webapi/api/Providers/getPostalCodeProviders/%s/%s/gapzap/%s",
			s.BaseURL, url.PathEscape(s.cfg.Country), url.PathEscape(s.cfg.ZipCode), url.PathEscape(lang)),
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("loading provider ids: %w", err)
	}
	return res.Providers, nil
}
