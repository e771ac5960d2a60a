// Package ota synthesizes a day of typical over-the-air programming for the
// lineup. It backs the ota command and is the fallback for every other
// source.
package ota

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"homelab-epg/epg"
	"homelab-epg/lineup"
	"homelab-epg/xmltv"
)

//go:embed rotations.yaml
var rotationsYAML []byte

// dayStart is the local hour the synthetic schedule begins.
const dayStart = 6

const genericBlock = 2 * time.Hour

type Program struct {
	Title    string `yaml:"title"`
	Duration int    `yaml:"duration"`
	Desc     string `yaml:"desc"`
}

type Source struct {
	table     *lineup.Table
	rotations map[string][]Program
	loc       *time.Location
	now       func() time.Time
}

func New(table *lineup.Table, loc *time.Location) (*Source, error) {
	var rotations map[string][]Program
	if err := yaml.Unmarshal(rotationsYAML, &rotations); err != nil {
		return nil, fmt.Errorf("unmarshaling rotations: %w", err)
	}
	for network, programs := range rotations {
		for _, p := range programs {
			if p.Title == "" || p.Duration <= 0 {
				return nil, fmt.Errorf("rotation %s: bad program %+v", network, p)
			}
		}
	}
	if table == nil {
		table = lineup.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Source{table: table, rotations: rotations, loc: loc, now: time.Now}, nil
}

func (s *Source) Name() string {
	return "ota"
}

func (s *Source) SourceInfo() xmltv.SourceInfo {
	return xmltv.SourceInfo{Name: "San Diego OTA"}
}

func (s *Source) Fetch(ctx context.Context) ([]epg.ChannelSchedule, error) {
	return s.Day(s.now()), nil
}

// Day returns schedules for every lineup channel from 06:00 on day until the
// first programme that crosses midnight.
func (s *Source) Day(day time.Time) []epg.ChannelSchedule {
	y, m, d := day.In(s.loc).Date()
	start := time.Date(y, m, d, dayStart, 0, 0, 0, s.loc)

	schedules := make([]epg.ChannelSchedule, 0, len(s.table.Channels))
	for _, ch := range s.table.Channels {
		schedules = append(schedules, epg.ChannelSchedule{
			Labels:       []string{ch.ID},
			ID:           ch.ID,
			DisplayNames: ch.DisplayNames(),
			Listings:     s.fill(ch, start),
		})
	}
	return schedules
}

func (s *Source) fill(ch lineup.Channel, start time.Time) []epg.Listing {
	programs := s.rotations[ch.Network]
	ok := len(programs) > 0
	var listings []epg.Listing
	_, _, startDay := start.Date()
	for current, i := start, 0; ; i++ {
		if _, _, d := current.Date(); d != startDay {
			break
		}
		l := epg.Listing{
			Title:       "Programming on " + ch.Name,
			Description: "Television programming on " + ch.Name,
		}
		dur := genericBlock
		if ok {
			p := programs[i%len(programs)]
			l = epg.Listing{Title: p.Title, Description: p.Desc}
			dur = time.Duration(p.Duration) * time.Minute
		}
		l.Start = current
		l.Stop = current.Add(dur)
		listings = append(listings, l)
		current = l.Stop
	}
	return listings
}
