// Package gracenote scrapes tvlistings.gracenote.com for the configured zip
// code. The site has no documented API, so the extractor looks for JSON
// embedded in the grid pages and then probes known endpoints.
package gracenote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

const affiliateID = "orbebb"

var dataKeys = []string{"channels", "programs", "listings"}

type Source struct {
	BaseURL string
	ZipCode string

	client *fetch.Client
}

func New(client *fetch.Client, zip string) *Source {
	if zip == "" {
		zip = consts.DEFAULT_ZIP
	}
	return &Source{BaseURL: consts.GRACENOTE_URL, ZipCode: zip, client: client}
}

func (s *Source) Name() string {
	return "gracenote"
}

func (s *Source) SourceInfo() xmltv.SourceInfo {
	return xmltv.SourceInfo{Name: "Gracenote TV Listings", URL: s.BaseURL + "/"}
}

func (s *Source) Fetch(ctx context.Context) ([]epg.ChannelSchedule, error) {
	logger := zap.L()

	schedules, gridErr := s.fromGrid(ctx)
	if gridErr == nil && len(schedules) > 0 {
		return schedules, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Info("Grid scraping found no listings, trying API endpoints.", zap.Error(gridErr))

	errs := []error{gridErr}
	for _, endpoint := range s.endpoints() {
		schedules, err := s.probe(ctx, endpoint)
		if err == nil && len(schedules) > 0 {
			logger.Info("Found listings.", zap.String("endpoint", endpoint))
			return schedules, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("%s: %w", endpoint, epg.ErrNoData)
		}
		logger.Debug("Endpoint failed.", zap.String("endpoint", endpoint), zap.Error(err))
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("gracenote: %w", errors.Join(errs...))
}

// fromGrid loads the landing page for cookies, then the affiliate grid page.
func (s *Source) fromGrid(ctx context.Context) ([]epg.ChannelSchedule, error) {
	landing, err := s.client.Document(ctx, fetch.Request{URL: s.BaseURL + "/"})
	if err != nil {
		return nil, err
	}
	landing.Find("script").Each(func(_ int, sel *goquery.Selection) {
		body := strings.ToLower(sel.Text())
		if strings.Contains(body, "api") || strings.Contains(body, "lineup") {
			zap.L().Debug("Landing page script mentions an API.", zap.String("script", truncate(sel.Text(), 200)))
		}
	})

	grid, err := s.client.Document(ctx, fetch.Request{
		URL: fmt.Sprintf("%s/grid-affiliates.html?aid=%s&zipcode=%s", s.BaseURL, affiliateID, s.ZipCode),
	})
	if err != nil {
		return nil, err
	}
	return fromScripts(grid)
}

func (s *Source) endpoints() []string {
	return []string{
		fmt.Sprintf("%s/api/grid?zipcode=%s", s.BaseURL, s.ZipCode),
		fmt.Sprintf("%s/api/listings?zip=%s", s.BaseURL, s.ZipCode),
		fmt.Sprintf("%s/gapzap_webapi/api/airings?lineupId=USA-OTA-%s", s.BaseURL, s.ZipCode),
		fmt.Sprintf("%s/data/listings/%s", s.BaseURL, s.ZipCode),
	}
}

// probe accepts either JSON or an HTML page with embedded JSON.
func (s *Source) probe(ctx context.Context, endpoint string) ([]epg.ChannelSchedule, error) {
	body, err := s.client.Bytes(ctx, fetch.Request{URL: endpoint, Timeout: consts.PROBE_TIMEOUT})
	if err != nil {
		return nil, err
	}
	var data any
	if err := json.Unmarshal(body, &data); err == nil {
		return convert(data), nil
	}
	if len(body) < 100 {
		return nil, fmt.Errorf("%w: short non-JSON response from %s", epg.ErrParse, endpoint)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", epg.ErrParse, err)
	}
	return fromScripts(doc)
}

// fromScripts decodes the first script body that carries listing JSON.
func fromScripts(doc *goquery.Document) ([]epg.ChannelSchedule, error) {
	var found []epg.ChannelSchedule
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !mentionsData(text) {
			return true
		}
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return true
		}
		var data any
		if err := json.Unmarshal([]byte(text[start:end+1]), &data); err != nil {
			zap.L().Debug("Script JSON did not decode.", zap.Error(err))
			return true
		}
		found = convert(data)
		return len(found) == 0
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: no listing data in page scripts", epg.ErrNoData)
	}
	return found, nil
}

func mentionsData(s string) bool {
	for _, k := range dataKeys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// convert reads loosely structured listing JSON: an object with channels and
// programs (or listings), or a bare array of programs.
func convert(data any) []epg.ChannelSchedule {
	var channels, programs []any
	switch v := data.(type) {
	case map[string]any:
		channels, _ = v["channels"].([]any)
		if programs, _ = v["programs"].([]any); programs == nil {
			programs, _ = v["listings"].([]any)
		}
	case []any:
		programs = v
	}

	var schedules []epg.ChannelSchedule
	index := make(map[string]int)
	channel := func(id, name string) int {
		if i, ok := index[id]; ok {
			if name != "" && len(schedules[i].DisplayNames) == 0 {
				schedules[i].DisplayNames = []string{name}
				schedules[i].Labels = []string{name, id}
			}
			return i
		}
		index[id] = len(schedules)
		sched := epg.ChannelSchedule{Labels: []string{id}, ID: id}
		if name != "" {
			sched.Labels = []string{name, id}
			sched.DisplayNames = []string{name}
		}
		schedules = append(schedules, sched)
		return index[id]
	}

	for _, c := range channels {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		id := field(m, "id", "number")
		if id == "" {
			continue
		}
		channel(id, field(m, "name", "callsign"))
	}

	for _, p := range programs {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		id := field(m, "channel_id", "channelId")
		title := field(m, "title", "name")
		start, errStart := timeField(m, "start_time", "startTime")
		stop, errStop := timeField(m, "end_time", "endTime")
		if id == "" || title == "" || errStart != nil || errStop != nil {
			continue
		}
		i := channel(id, "")
		schedules[i].Listings = append(schedules[i].Listings, epg.Listing{
			Start:       start,
			Stop:        stop,
			Title:       title,
			Description: field(m, "description"),
		})
	}

	// Channels without programmes are not useful on their own.
	out := schedules[:0]
	for _, s := range schedules {
		if len(s.Listings) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// field returns the first present key as a string.
func field(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// timeField accepts ISO strings and unix seconds or milliseconds.
func timeField(m map[string]any, keys ...string) (time.Time, error) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			return xmltv.ParseTime(v)
		case float64:
			if v > 1e12 {
				return time.UnixMilli(int64(v)), nil
			}
			return time.Unix(int64(v), 0), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: missing %s", xmltv.ErrInvalidTime, keys[0])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
