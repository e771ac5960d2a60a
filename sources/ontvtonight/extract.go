package ontvtonight

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"homelab-epg/xmltv"
)

var (
	guideClass  = regexp.MustCompile(`(?i)guide|listing|tv`)
	blockClass  = regexp.MustCompile(`(?i)channel|program|listing|guide|show`)
	timeRe      = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}\s*[AP]M)\b`)
	channelRe   = regexp.MustCompile(`\b(K[A-Z]{3}(?:-[A-Z0-9]+)?|Channel\s*\d+|\d{1,2}\.\d{1,2})\b`)
	onChannelRe = regexp.MustCompile(`(?i)^(\d{1,2}:\d{2}\s*[AP]M)\s+(.+?)\s+on\s+([A-Z0-9][A-Z0-9.\-]*)\s*$`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// entry is one raw guide listing. Time is a wall clock on the guide day;
// Start is set instead when the page carries a full timestamp. Period names
// the guide page it came from.
type entry struct {
	Channel string
	Time    string
	Title   string
	Period  string
	Start   time.Time
	Stop    time.Time
}

func extract(doc *goquery.Document) []entry {
	var out []entry
	out = append(out, fromLDJSON(doc)...)
	out = append(out, fromTables(doc)...)
	out = append(out, fromBlocks(doc)...)
	out = append(out, fromDataAttrs(doc)...)
	return out
}

func clean(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func dedupe(entries []entry) []entry {
	seen := make(map[[3]string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		t := e.Period + " " + e.Time
		if !e.Start.IsZero() {
			t = e.Start.UTC().Format(time.RFC3339)
		}
		key := [3]string{strings.ToLower(e.Channel), strings.ToLower(t), strings.ToLower(e.Title)}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

type broadcastEvent struct {
	Type          any    `json:"@type"`
	Name          string `json:"name"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	WorkPerformed *struct {
		Name string `json:"name"`
	} `json:"workPerformed"`
	PublishedOn *struct {
		Name                 string `json:"name"`
		BroadcastDisplayName string `json:"broadcastDisplayName"`
		CallSign             string `json:"callSign"`
	} `json:"publishedOn"`
	Graph []json.RawMessage `json:"@graph"`
}

func (b *broadcastEvent) isBroadcast() bool {
	switch v := b.Type.(type) {
	case string:
		return v == "BroadcastEvent"
	case []any:
		for _, t := range v {
			if t == "BroadcastEvent" {
				return true
			}
		}
	}
	return false
}

func fromLDJSON(doc *goquery.Document) []entry {
	var out []entry
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		out = append(out, ldEntries(json.RawMessage(s.Text()))...)
	})
	return out
}

func ldEntries(raw json.RawMessage) []entry {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []entry
		for _, item := range list {
			out = append(out, ldEntries(item)...)
		}
		return out
	}
	var ev broadcastEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil
	}
	if len(ev.Graph) > 0 {
		var out []entry
		for _, item := range ev.Graph {
			out = append(out, ldEntries(item)...)
		}
		return out
	}
	if !ev.isBroadcast() {
		return nil
	}

	e := entry{Title: clean(ev.Name)}
	if ev.WorkPerformed != nil && ev.WorkPerformed.Name != "" {
		e.Title = clean(ev.WorkPerformed.Name)
	}
	if p := ev.PublishedOn; p != nil {
		for _, c := range []string{p.CallSign, p.BroadcastDisplayName, p.Name} {
			if c != "" {
				e.Channel = clean(c)
				break
			}
		}
	}
	start, err := xmltv.ParseTime(ev.StartDate)
	if err != nil || e.Title == "" || e.Channel == "" {
		return nil
	}
	e.Start = start
	if stop, err := xmltv.ParseTime(ev.EndDate); err == nil {
		e.Stop = stop
	}
	return []entry{e}
}

// fromTables reads guide tables row by row: a cell with a clock time, a cell
// naming the channel and the longest remaining cell as the title.
func fromTables(doc *goquery.Document) []entry {
	var out []entry
	doc.Find("table").FilterFunction(func(_ int, t *goquery.Selection) bool {
		class, _ := t.Attr("class")
		return guideClass.MatchString(class)
	}).Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		var e entry
		cells.Each(func(_ int, c *goquery.Selection) {
			text := clean(c.Text())
			switch {
			case text == "":
			case e.Time == "" && timeRe.MatchString(text):
				e.Time = timeRe.FindString(text)
			case e.Channel == "" && channelRe.MatchString(text):
				e.Channel = channelRe.FindString(text)
			case len(text) > len(e.Title):
				e.Title = text
			}
		})
		if e.Time != "" && e.Channel != "" && e.Title != "" {
			out = append(out, e)
		}
	})
	return out
}

// fromBlocks matches "8:00 PM Show Title on KGTV" text in listing blocks.
func fromBlocks(doc *goquery.Document) []entry {
	var out []entry
	doc.Find("div, li").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return blockClass.MatchString(class)
	}).Each(func(_ int, s *goquery.Selection) {
		m := onChannelRe.FindStringSubmatch(clean(s.Text()))
		if m == nil || timeRe.MatchString(m[2]) {
			return
		}
		out = append(out, entry{Time: m[1], Title: m[2], Channel: m[3]})
	})
	return out
}

func fromDataAttrs(doc *goquery.Document) []entry {
	var out []entry
	doc.Find("[data-channel]").Each(func(_ int, s *goquery.Selection) {
		e := entry{Channel: clean(s.AttrOr("data-channel", ""))}
		e.Time = clean(s.AttrOr("data-time", ""))
		e.Title = clean(s.AttrOr("data-program", s.AttrOr("data-show", "")))
		if e.Title == "" {
			e.Title = clean(s.Text())
		}
		if e.Channel != "" && e.Time != "" && e.Title != "" {
			out = append(out, e)
		}
	})
	return out
}

func parseClock(s string, day time.Time, loc *time.Location) (time.Time, error) {
	if t, err := xmltv.ParseTime(s); err == nil {
		return t, nil
	}
	return xmltv.ParseClock(s, day, loc)
}
