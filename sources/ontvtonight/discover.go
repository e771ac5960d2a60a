package ontvtonight

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"homelab-epg/consts"
	"homelab-epg/fetch"
)

var endpointPatterns = []string{
	"/api/guide",
	"/api/tv-guide",
	"/api/listings",
	"/guide/api",
	"/tv/api",
	"/api/channels",
	"/api/programs",
	"/guide/data",
	"/data/guide",
	"/ajax/guide",
	"/xhr/guide",
}

type Endpoint struct {
	URL         string `json:"url"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	JSON        bool   `json:"json"`
	Sample      string `json:"sample,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Report struct {
	Generated time.Time  `json:"generated"`
	Region    string     `json:"region"`
	Scripts   []string   `json:"scripts"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Working returns the endpoints that answered with usable data.
func (r *Report) Working() []Endpoint {
	var out []Endpoint
	for _, e := range r.Endpoints {
		if e.Error == "" && e.Sample != "" {
			out = append(out, e)
		}
	}
	return out
}

// Discover probes likely guide data endpoints and lists the scripts the guide
// page loads.
func (s *Source) Discover(ctx context.Context) (*Report, error) {
	logger := zap.L()
	report := &Report{Generated: s.now(), Region: s.Region}

	doc, err := s.client.Document(ctx, fetch.Request{URL: s.guideURL("")})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Failed to load guide page.", zap.Error(err))
	} else {
		report.Scripts = scriptSources(doc, s.BaseURL)
	}

	params := url.Values{
		"region": {s.Region},
		"date":   {s.day().Format("2006-01-02")},
		"period": {"Afternoon"},
	}
	for _, pattern := range endpointPatterns {
		ep := s.probe(ctx, s.BaseURL+pattern, params)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug("Probed endpoint.", zap.String("url", ep.URL), zap.Int("status", ep.Status), zap.Bool("json", ep.JSON))
		report.Endpoints = append(report.Endpoints, ep)
	}
	logger.Info("Endpoint discovery finished.", zap.Int("working", len(report.Working())), zap.Int("scripts", len(report.Scripts)))
	return report, nil
}

func (s *Source) probe(ctx context.Context, endpoint string, params url.Values) Endpoint {
	ep := Endpoint{URL: endpoint}
	res, err := s.client.Do(ctx, fetch.Request{URL: endpoint, Query: params, Timeout: consts.PROBE_TIMEOUT})
	if err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) {
			ep.Status = se.StatusCode
		}
		ep.Error = err.Error()
		return ep
	}
	defer res.Body.Close()
	ep.Status = res.StatusCode
	ep.ContentType = res.Header.Get("Content-Type")

	body, err := io.ReadAll(res.Body)
	if err != nil {
		ep.Error = err.Error()
		return ep
	}
	if strings.Contains(ep.ContentType, "json") {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			ep.Error = err.Error()
			return ep
		}
		sample, _ := json.Marshal(data)
		ep.JSON = true
		ep.Sample = truncate(string(sample), 500)
		return ep
	}
	if len(body) > 100 {
		ep.Sample = truncate(string(body), 200)
	}
	return ep
}

func scriptSources(doc *goquery.Document, base string) []string {
	var out []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		lower := strings.ToLower(src)
		if !strings.Contains(lower, "guide") && !strings.Contains(lower, "tv") && !strings.Contains(lower, "api") {
			return
		}
		if abs, err := resolve(base+"/", src); err == nil {
			src = abs
		}
		out = append(out, src)
	})
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
