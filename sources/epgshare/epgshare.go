// Package epgshare filters the large EPGShare US feeds down to the channels
// in the lineup.
package epgshare

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ulikunitz/xz"
	"go.uber.org/zap"

	"homelab-epg/consts"
	"homelab-epg/epg"
	"homelab-epg/fetch"
	"homelab-epg/lineup"
	"homelab-epg/xmltv"
)

// DefaultFiles are tried in order until one yields lineup channels.
var DefaultFiles = []string{
	"epg_ripper_US_LOCALS2.xml.gz",
	"epg_ripper_US1.xml.gz",
	"epg_ripper_US_LOCALS.xml.gz",
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

type Source struct {
	BaseURL string
	Files   []string

	client *fetch.Client
	table  *lineup.Table
}

func New(client *fetch.Client, table *lineup.Table) *Source {
	if table == nil {
		table = lineup.Default()
	}
	return &Source{
		BaseURL: consts.EPGSHARE_URL,
		Files:   DefaultFiles,
		client:  client,
		table:   table,
	}
}

func (s *Source) Name() string {
	return "epgshare"
}

func (s *Source) SourceInfo() xmltv.SourceInfo {
	return xmltv.SourceInfo{Name: "EPGShare San Diego", URL: s.BaseURL}
}

func (s *Source) Fetch(ctx context.Context) ([]epg.ChannelSchedule, error) {
	logger := zap.L()
	var errs []error
	for _, file := range s.Files {
		url := strings.TrimRight(s.BaseURL, "/") + "/" + file
		logger.Info("Fetching EPGShare feed.", zap.String("url", url))

		schedules, err := s.fetchFile(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("EPGShare feed failed.", zap.String("file", file), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if len(schedules) == 0 {
			logger.Info("No lineup channels in feed.", zap.String("file", file))
			errs = append(errs, fmt.Errorf("%s: %w", file, epg.ErrNoData))
			continue
		}
		return schedules, nil
	}
	return nil, fmt.Errorf("epgshare: no usable feed: %w", errors.Join(errs...))
}

func (s *Source) fetchFile(ctx context.Context, url string) ([]epg.ChannelSchedule, error) {
	res, err := s.client.Do(ctx, fetch.Request{URL: url, Timeout: 2 * consts.REQUEST_TIMEOUT})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	r, err := decompress(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", epg.ErrParse, url, err)
	}
	return s.filter(r)
}

// decompress sniffs gzip and xz streams; anything else is read as plain XML.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(xzMagic))
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return gzip.NewReader(br)
	case bytes.HasPrefix(head, xzMagic):
		return xz.NewReader(br)
	default:
		return br, nil
	}
}

// filter streams the feed, keeping channels the lineup maps and their
// programmes.
func (s *Source) filter(r io.Reader) ([]epg.ChannelSchedule, error) {
	var schedules []epg.ChannelSchedule
	index := make(map[string]int)
	resolved := make(map[string]string)
	skipped := 0

	add := func(localID string, names []string) int {
		i, ok := index[localID]
		if !ok {
			i = len(schedules)
			index[localID] = i
			schedules = append(schedules, epg.ChannelSchedule{Labels: []string{localID}, ID: localID})
		}
		schedules[i].DisplayNames = append(schedules[i].DisplayNames, names...)
		return i
	}

	p := xmltv.Parser{
		OnChannel: func(ch *xmltv.Channel) error {
			labels := []string{ch.ID}
			var names []string
			for _, dn := range ch.DisplayNames {
				labels = append(labels, dn.Value)
				names = append(names, dn.Value)
			}
			local := s.table.LookupStation(labels...)
			resolved[ch.ID] = local.ID
			if local.Mapped() {
				add(local.ID, names)
			}
			return nil
		},
		OnProgramme: func(prog *xmltv.Programme) error {
			localID, ok := resolved[prog.Channel]
			if !ok {
				localID = s.table.LookupStation(prog.Channel).ID
				resolved[prog.Channel] = localID
			}
			if localID == "" {
				return nil
			}
			i := add(localID, nil)
			schedules[i].Listings = append(schedules[i].Listings, epg.Listing{
				Start:       prog.Start.Time,
				Stop:        prog.Stop.Time,
				Title:       prog.Title(),
				SubTitle:    prog.SubTitle(),
				Description: prog.Desc(),
			})
			return nil
		},
		OnError: func(err error) { skipped++ },
	}
	if err := p.Parse(r); err != nil {
		return nil, fmt.Errorf("%w: %w", epg.ErrParse, err)
	}
	if skipped > 0 {
		zap.L().Debug("Skipped undecodable feed elements.", zap.Int("count", skipped))
	}
	return schedules, nil
}
