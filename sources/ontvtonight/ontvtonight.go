// Package ontvtonight scrapes the OnTVTonight regional guide pages, logging in
// first when credentials are configured.
package ontvtonight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"homelab-epg/consts"
	"homelab-epg/epg"
	"homelab-epg/fetch"
	"homelab-epg/lineup"
	"homelab-epg/xmltv"
)

// Periods are the guide page slices for one day.
var Periods = []string{"Morning", "Afternoon", "Evening", lateNight}

const lateNight = "Late Night"

const (
	defaultDuration = time.Hour
	// maxDuration caps stops taken from the next listing. Longer holes get
	// defaultDuration.
	maxDuration = 6 * time.Hour
)

var (
	usernameField = regexp.MustCompile(`(?i)^(username|email|user)`)
	passwordField = regexp.MustCompile(`(?i)^(password|pass)`)
)

type Source struct {
	BaseURL  string
	Region   string
	Username string
	Password string
	// Date is the guide day; zero means today.
	Date time.Time

	client *fetch.Client
	table  *lineup.Table
	loc    *time.Location
	now    func() time.Time
}

func New(client *fetch.Client, table *lineup.Table, loc *time.Location) *Source {
	if table == nil {
		table = lineup.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Source{
		BaseURL: consts.ONTVTONIGHT_URL,
		Region:  consts.DEFAULT_REGION,
		client:  client,
		table:   table,
		loc:     loc,
		now:     time.Now,
	}
}

func (s *Source) Name() string {
	return "ontvtonight"
}

func (s *Source) day() time.Time {
	if s.Date.IsZero() {
		return s.now().In(s.loc)
	}
	return s.Date
}

// Login submits the site's login form. The form and its field names are
// discovered from the login page.
func (s *Source) Login(ctx context.Context) error {
	loginURL := s.BaseURL + "/user/login/"
	doc, err := s.client.Document(ctx, fetch.Request{URL: loginURL})
	if err != nil {
		return fmt.Errorf("%w: loading login page: %w", epg.ErrAuth, err)
	}

	form := loginForm(doc)
	if form == nil {
		return fmt.Errorf("%w: login form not found", epg.ErrAuth)
	}
	values := url.Values{}
	userKey, passKey := "", ""
	form.Find("input").Each(func(_ int, in *goquery.Selection) {
		name, ok := in.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := in.Attr("value")
		values.Set(name, value)
		switch {
		case userKey == "" && usernameField.MatchString(name):
			userKey = name
		case passKey == "" && passwordField.MatchString(name):
			passKey = name
		}
	})
	if userKey == "" || passKey == "" {
		return fmt.Errorf("%w: login form has no username or password field", epg.ErrAuth)
	}
	values.Set(userKey, s.Username)
	values.Set(passKey, s.Password)

	action, _ := form.Attr("action")
	target, err := resolve(loginURL, action)
	if err != nil {
		return fmt.Errorf("%w: login form action %q: %w", epg.ErrAuth, action, err)
	}

	zap.L().Info("Submitting login form.", zap.String("action", target))
	res, err := s.client.Do(ctx, fetch.Request{URL: target, Form: values})
	if err != nil {
		return fmt.Errorf("%w: %w", epg.ErrAuth, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: reading login response: %w", epg.ErrNetwork, err)
	}
	page := strings.ToLower(string(body))
	if strings.Contains(page, "logout") || strings.Contains(page, "profile") {
		return nil
	}
	if strings.Contains(strings.ToLower(res.Request.URL.Path), "login") {
		return fmt.Errorf("%w: credentials rejected", epg.ErrAuth)
	}
	return nil
}

func loginForm(doc *goquery.Document) *goquery.Selection {
	forms := doc.Find("form")
	byAction := forms.FilterFunction(func(_ int, f *goquery.Selection) bool {
		action, _ := f.Attr("action")
		return strings.Contains(strings.ToLower(action), "login")
	})
	if byAction.Length() > 0 {
		return byAction.First()
	}
	byField := forms.FilterFunction(func(_ int, f *goquery.Selection) bool {
		found := false
		f.Find("input[name]").EachWithBreak(func(_ int, in *goquery.Selection) bool {
			name, _ := in.Attr("name")
			found = usernameField.MatchString(name)
			return !found
		})
		return found
	})
	if byField.Length() > 0 {
		return byField.First()
	}
	return nil
}

func resolve(base, ref string) (string, error) {
	if ref == "" {
		ref = "/login"
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func (s *Source) guideURL(period string) string {
	q := url.Values{"region": {s.Region}, "date": {s.day().Format("2006-01-02")}}
	if period != "" {
		q.Set("TVperiod", period)
	}
	return s.BaseURL + "/guide/?" + q.Encode()
}

func (s *Source) Fetch(ctx context.Context) ([]epg.ChannelSchedule, error) {
	logger := zap.L()
	if s.Username != "" && s.Password != "" {
		if err := s.Login(ctx); err != nil {
			return nil, err
		}
	}

	var entries []entry
	var errs []error
	for _, period := range Periods {
		doc, err := s.client.Document(ctx, fetch.Request{URL: s.guideURL(period)})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Failed to fetch guide period.", zap.String("period", period), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		found := extract(doc)
		for i := range found {
			found[i].Period = period
		}
		logger.Debug("Parsed guide period.", zap.String("period", period), zap.Int("entries", len(found)))
		entries = append(entries, found...)
	}
	if len(errs) == len(Periods) {
		return nil, fmt.Errorf("ontvtonight: %w", errors.Join(errs...))
	}

	schedules := s.schedules(dedupe(entries))
	if len(schedules) == 0 {
		return nil, fmt.Errorf("ontvtonight: %w for region %s", epg.ErrNoData, s.Region)
	}
	return schedules, nil
}

// schedules maps entries onto the lineup and derives stop times: each
// programme ends when the next one on its channel starts.
//
// Clock times are anchored on the guide day. Morning hours on the late night
// page belong to the following day, as does any time that runs backwards
// within a channel's listings on one page.
func (s *Source) schedules(entries []entry) []epg.ChannelSchedule {
	day := s.day()
	byChannel := make(map[string][]epg.Listing)
	last := make(map[[2]string]time.Time)
	var order []string
	for _, e := range entries {
		ch := s.table.Lookup(e.Channel)
		if !ch.Mapped() {
			continue
		}
		start := e.Start
		if start.IsZero() {
			var err error
			if start, err = parseClock(e.Time, day, s.loc); err != nil {
				continue
			}
			if e.Period == lateNight && start.Hour() < 12 {
				start = start.AddDate(0, 0, 1)
			}
			page := [2]string{ch.ID, e.Period}
			if prev, ok := last[page]; ok && start.Before(prev) {
				start = xmltv.StopAfter(prev, start)
			}
			last[page] = start
		}
		if _, ok := byChannel[ch.ID]; !ok {
			order = append(order, ch.ID)
		}
		byChannel[ch.ID] = append(byChannel[ch.ID], epg.Listing{Start: start, Stop: e.Stop, Title: e.Title})
	}

	schedules := make([]epg.ChannelSchedule, 0, len(order))
	for _, id := range order {
		listings := byChannel[id]
		sort.SliceStable(listings, func(i, j int) bool { return listings[i].Start.Before(listings[j].Start) })
		for i := range listings {
			if !listings[i].Stop.IsZero() && listings[i].Stop.After(listings[i].Start) {
				continue
			}
			listings[i].Stop = listings[i].Start.Add(defaultDuration)
			if i+1 < len(listings) {
				next := listings[i+1].Start
				if next.After(listings[i].Start) && next.Sub(listings[i].Start) <= maxDuration {
					listings[i].Stop = next
				}
			}
		}
		schedules = append(schedules, epg.ChannelSchedule{Labels: []string{id}, ID: id, Listings: listings})
	}
	return schedules
}
