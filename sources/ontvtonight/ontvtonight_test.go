package ontvtonight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kr/pretty"

	"homelab-epg/epg"
	"homelab-epg/fetch"
	"homelab-epg/lineup"
)

var pacific = time.FixedZone("PST", -8*60*60)

const morningPage = `<html><body>
<div data-channel="KGTV" data-time="7:00 AM" data-program="Good Morning America"></div>
<div data-channel="KGTV" data-time="7:00 AM" data-program="Good Morning America"></div>
<div data-channel="KGTV" data-time="9:00 AM" data-show="The View"></div>
<div data-channel="ZZZZ" data-time="9:00 AM" data-show="Nowhere"></div>
</body></html>`

const afternoonPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
 {"@type":"BroadcastEvent","name":"NBC News Daytime","startDate":"2025-01-01T13:00:00-08:00","endDate":"2025-01-01T14:00:00-08:00","publishedOn":{"@type":"BroadcastService","callSign":"KNSD"}},
 {"@type":"WebPage","name":"Guide"}
]}
</script>
</head><body></body></html>`

const eveningPage = `<html><body>
<table class="tv-guide">
 <tr><th>Time</th><th>Channel</th><th>Show</th></tr>
 <tr><td>8:00 PM</td><td>KFMB</td><td>Survivor</td></tr>
 <tr><td>9:00 PM</td><td>KFMB</td><td>Tracker</td></tr>
</table>
<ul><li class="show-item">10:00 PM Late News on KSWB</li></ul>
</body></html>`

func guideServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request) bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handle != nil && handle(w, r) {
			return
		}
		if r.URL.Path != "/guide/" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("region") != "10199" || q.Get("date") != "2025-01-01" {
			t.Errorf("unexpected guide query %s", r.URL.RawQuery)
		}
		switch q.Get("TVperiod") {
		case "Morning":
			fmt.Fprint(w, morningPage)
		case "Afternoon":
			fmt.Fprint(w, afternoonPage)
		case "Evening":
			fmt.Fprint(w, eveningPage)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSource(url string) *Source {
	s := New(fetch.New(), lineup.Default(), pacific)
	s.BaseURL = url
	s.Date = time.Date(2025, 1, 1, 0, 0, 0, 0, pacific)
	return s
}

func TestFetchAllPeriods(t *testing.T) {
	srv := guideServer(t, nil)
	schedules, err := newSource(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	got := map[string][]string{}
	var order []string
	for _, s := range schedules {
		order = append(order, s.ID)
		for _, l := range s.Listings {
			got[s.ID] = append(got[s.ID], l.Start.In(pacific).Format("2006-01-02 15:04")+"-"+l.Stop.In(pacific).Format("15:04")+" "+l.Title)
		}
	}
	want := map[string][]string{
		"10.1": {
			"2025-01-01 07:00-09:00 Good Morning America",
			"2025-01-01 09:00-10:00 The View",
		},
		"39.1": {"2025-01-01 13:00-14:00 NBC News Daytime"},
		"8.1": {
			"2025-01-01 20:00-21:00 Survivor",
			"2025-01-01 21:00-22:00 Tracker",
		},
		"69.1": {"2025-01-01 22:00-23:00 Late News"},
	}
	if diff := pretty.Diff(want, got); len(diff) > 0 {
		t.Errorf("unexpected schedules:\n%s", strings.Join(diff, "\n"))
	}
	if strings.Join(order, ",") != "10.1,39.1,8.1,69.1" {
		t.Errorf("unexpected channel order %v", order)
	}
}

const lateEveningPage = `<html><body>
<ul><li class="show-item">10:00 PM Late News on KSWB</li></ul>
<div data-channel="KSWB" data-time="11:00 PM" data-show="TMZ"></div>
<div data-channel="KSWB" data-time="12:00 AM" data-show="Extra"></div>
</body></html>`

const lateNightPage = `<html><body>
<div data-channel="KGTV" data-time="11:35 PM" data-show="Jimmy Kimmel Live"></div>
<div data-channel="KGTV" data-time="12:37 AM" data-show="Nightline"></div>
<div data-channel="KGTV" data-time="1:07 AM" data-show="World News Now"></div>
</body></html>`

func TestFetchRollsPastMidnight(t *testing.T) {
	srv := guideServer(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch r.URL.Query().Get("TVperiod") {
		case "Evening":
			fmt.Fprint(w, lateEveningPage)
		case "Late Night":
			fmt.Fprint(w, lateNightPage)
		default:
			return false
		}
		return true
	})
	schedules, err := newSource(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	got := map[string][]string{}
	for _, s := range schedules {
		for _, l := range s.Listings {
			got[s.ID] = append(got[s.ID], l.Start.In(pacific).Format("2006-01-02 15:04")+"-"+l.Stop.In(pacific).Format("01-02 15:04")+" "+l.Title)
		}
	}
	want := map[string][]string{
		"10.1": {
			"2025-01-01 07:00-01-01 09:00 Good Morning America",
			"2025-01-01 09:00-01-01 10:00 The View",
			"2025-01-01 23:35-01-02 00:37 Jimmy Kimmel Live",
			"2025-01-02 00:37-01-02 01:07 Nightline",
			"2025-01-02 01:07-01-02 02:07 World News Now",
		},
		"39.1": {"2025-01-01 13:00-01-01 14:00 NBC News Daytime"},
		"69.1": {
			"2025-01-01 22:00-01-01 23:00 Late News",
			"2025-01-01 23:00-01-02 00:00 TMZ",
			"2025-01-02 00:00-01-02 01:00 Extra",
		},
	}
	if diff := pretty.Diff(want, got); len(diff) > 0 {
		t.Errorf("unexpected schedules:\n%s", strings.Join(diff, "\n"))
	}
}

func TestFetchAllPeriodsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newSource(srv.URL).Fetch(context.Background())
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestFetchNothingMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div data-channel="ZZZZ" data-time="9:00 AM" data-show="Nowhere"></div>`)
	}))
	defer srv.Close()

	if _, err := newSource(srv.URL).Fetch(context.Background()); !errors.Is(err, epg.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

const loginPage = `<html><body>
<form action="/search"><input name="q"></form>
<form action="/user/login/submit" method="post">
 <input type="hidden" name="csrf" value="tok">
 <input type="text" name="email">
 <input type="password" name="password">
</form></body></html>`

func loginHandler(t *testing.T, loggedIn *bool) func(w http.ResponseWriter, r *http.Request) bool {
	return func(w http.ResponseWriter, r *http.Request) bool {
		switch r.URL.Path {
		case "/user/login/":
			fmt.Fprint(w, loginPage)
		case "/user/login/submit":
			if err := r.ParseForm(); err != nil {
				t.Error(err)
			}
			if r.PostForm.Get("csrf") != "tok" {
				t.Errorf("hidden input not submitted: %v", r.PostForm)
			}
			if r.PostForm.Get("email") != "viewer@example.com" || r.PostForm.Get("password") != "secret" {
				http.Redirect(w, r, "/user/login/?failed=1", http.StatusSeeOther)
				return true
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			http.Redirect(w, r, "/account", http.StatusSeeOther)
		case "/account":
			fmt.Fprint(w, `<a href="/user/logout/">Logout</a>`)
		case "/guide/":
			if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
				*loggedIn = true
			}
			return false
		default:
			return false
		}
		return true
	}
}

func TestLogin(t *testing.T) {
	var loggedIn bool
	srv := guideServer(t, loginHandler(t, &loggedIn))
	s := newSource(srv.URL)
	s.Username, s.Password = "viewer@example.com", "secret"

	if _, err := s.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !loggedIn {
		t.Error("session cookie not sent with guide requests")
	}
}

func TestLoginRejected(t *testing.T) {
	var loggedIn bool
	srv := guideServer(t, loginHandler(t, &loggedIn))
	s := newSource(srv.URL)
	s.Username, s.Password = "viewer@example.com", "wrong"

	if _, err := s.Fetch(context.Background()); !errors.Is(err, epg.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestLoginFormMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><form action="/search"><input name="q"></form></html>`)
	}))
	defer srv.Close()

	err := newSource(srv.URL).Login(context.Background())
	if !errors.Is(err, epg.ErrAuth) || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing form error, got %v", err)
	}
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guide/":
			fmt.Fprint(w, `<html><head>
<script src="/static/guide-app.js"></script>
<script src="/static/jquery.min.js"></script>
<script src="https://cdn.example.com/api/loader.js"></script>
</head></html>`)
		case "/api/guide":
			if r.URL.Query().Get("period") != "Afternoon" {
				t.Errorf("unexpected probe query %s", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"channels":[{"id":"10.1"}]}`)
		case "/api/channels":
			fmt.Fprint(w, "<html>"+strings.Repeat("channel ", 30)+"</html>")
		case "/ajax/guide":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"broken"`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	report, err := newSource(srv.URL).Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	wantScripts := []string{srv.URL + "/static/guide-app.js", "https://cdn.example.com/api/loader.js"}
	if diff := pretty.Diff(wantScripts, report.Scripts); len(diff) > 0 {
		t.Errorf("unexpected scripts: %v", diff)
	}
	if len(report.Endpoints) != len(endpointPatterns) {
		t.Fatalf("expected %d probes, got %d", len(endpointPatterns), len(report.Endpoints))
	}
	working := report.Working()
	if len(working) != 2 {
		t.Fatalf("expected 2 working endpoints, got %# v", pretty.Formatter(working))
	}
	if !working[0].JSON || working[0].Sample != `{"channels":[{"id":"10.1"}]}` {
		t.Errorf("unexpected JSON endpoint %+v", working[0])
	}
	if working[1].JSON || !strings.HasSuffix(working[1].Sample, "...") {
		t.Errorf("unexpected HTML endpoint %+v", working[1])
	}
	for _, ep := range report.Endpoints {
		if strings.HasSuffix(ep.URL, "/api/listings") && ep.Status != http.StatusNotFound {
			t.Errorf("404 not recorded: %+v", ep)
		}
	}
}
