package ota

import (
	"context"
	"testing"
	"time"

	"homelab-epg/lineup"
)

var pacific = time.FixedZone("PST", -8*60*60)

func TestDayFillsEveryChannel(t *testing.T) {
	src, err := New(lineup.Default(), pacific)
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2025, 1, 1, 15, 0, 0, 0, pacific)
	schedules := src.Day(day)
	if len(schedules) != len(lineup.Default().Channels) {
		t.Fatalf("expected one schedule per lineup channel, got %d", len(schedules))
	}

	for _, s := range schedules {
		if len(s.Listings) == 0 {
			t.Errorf("%s has no listings", s.ID)
			continue
		}
		first := s.Listings[0]
		if !first.Start.Equal(time.Date(2025, 1, 1, 6, 0, 0, 0, pacific)) {
			t.Errorf("%s starts at %v", s.ID, first.Start)
		}
		for i, l := range s.Listings {
			if !l.Start.Before(l.Stop) {
				t.Errorf("%s listing %d has start %v stop %v", s.ID, i, l.Start, l.Stop)
			}
			if i > 0 && !l.Start.Equal(s.Listings[i-1].Stop) {
				t.Errorf("%s listing %d leaves a gap", s.ID, i)
			}
		}
		last := s.Listings[len(s.Listings)-1]
		if last.Start.Day() != 1 || last.Stop.Before(time.Date(2025, 1, 2, 0, 0, 0, 0, pacific)) {
			t.Errorf("%s does not run to midnight: last %v - %v", s.ID, last.Start, last.Stop)
		}
	}
}

func TestDayUsesNetworkRotation(t *testing.T) {
	src, err := New(nil, pacific)
	if err != nil {
		t.Fatal(err)
	}
	schedules := src.Day(time.Date(2025, 1, 1, 0, 0, 0, 0, pacific))
	byID := make(map[string][]string)
	for _, s := range schedules {
		for _, l := range s.Listings {
			byID[s.ID] = append(byID[s.ID], l.Title)
		}
	}
	if got := byID["10.1"][0]; got != "Good Morning America" {
		t.Errorf("ABC opens with %q", got)
	}
	if got := byID["8.1"][1]; got != "The Price is Right" {
		t.Errorf("CBS second programme is %q", got)
	}
	if got := byID["7.2"][0]; got != "Programming on QVC" {
		t.Errorf("QVC should get generic blocks, got %q", got)
	}
	// Good Morning America is 3 hours, so ABC has its second show at 09:00.
	abc := schedules[0]
	if abc.ID != "10.1" || abc.Listings[1].Start.Hour() != 9 {
		t.Errorf("unexpected ABC second start %v", abc.Listings[1].Start)
	}
}

func TestFetchReturnsToday(t *testing.T) {
	src, err := New(nil, pacific)
	if err != nil {
		t.Fatal(err)
	}
	src.now = func() time.Time { return time.Date(2025, 6, 1, 20, 0, 0, 0, pacific) }
	schedules, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := schedules[0].Listings[0].Start; !got.Equal(time.Date(2025, 6, 1, 6, 0, 0, 0, pacific)) {
		t.Errorf("unexpected first start %v", got)
	}
}
