package xmltv

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"homelab-epg/consts"
)

var (
	ErrEmptyChannelID   = errors.New("xmltv: empty channel id")
	ErrNoDisplayName    = errors.New("xmltv: channel needs at least one display name")
	ErrEmptyTitle       = errors.New("xmltv: empty programme title")
	ErrInvalidTime      = errors.New("xmltv: invalid time")
	ErrInvalidTimeRange = errors.New("xmltv: stop is not after start")
)

// InvalidTimeRangeError reports a programme whose stop does not follow its start.
type InvalidTimeRangeError struct {
	Channel string
	Title   string
	Start   time.Time
	Stop    time.Time
}

func (e *InvalidTimeRangeError) Error() string {
	return fmt.Sprintf("xmltv: invalid time range for %q on %s: start %s, stop %s",
		e.Title, e.Channel, FormatTime(e.Start), FormatTime(e.Stop))
}

func (e *InvalidTimeRangeError) Is(target error) bool {
	return target == ErrInvalidTimeRange
}

// SourceInfo describes where a document's data came from.
type SourceInfo struct {
	Name string
	URL  string
	Lang string
}

// Airing is the input to AddProgramme.
type Airing struct {
	Channel     string
	Start       time.Time
	Stop        time.Time
	Title       string
	SubTitle    string
	Description string
	// Length is emitted as a <length units="minutes"> element when positive,
	// rounded up to whole minutes.
	Length time.Duration
}

// Builder assembles a Document. It holds at most one channel per id and
// rejects programmes that fail validation.
type Builder struct {
	doc      Document
	lang     string
	channels map[string]int
}

func NewBuilder(info SourceInfo) *Builder {
	lang := info.Lang
	if lang == "" {
		lang = consts.DEFAULT_LANG
	}
	return &Builder{
		doc: Document{
			SourceInfoURL:     info.URL,
			SourceInfoName:    info.Name,
			GeneratorInfoName: consts.GENERATOR_NAME,
			GeneratorInfoURL:  consts.GENERATOR_URL,
			Source:            SourceLive,
		},
		lang:     lang,
		channels: make(map[string]int),
	}
}

// FromDocument rebuilds a Builder from a parsed document, validating every
// channel and programme on the way.
func FromDocument(doc *Document) (*Builder, error) {
	b := &Builder{
		doc: Document{
			SourceInfoURL:     doc.SourceInfoURL,
			SourceInfoName:    doc.SourceInfoName,
			GeneratorInfoName: doc.GeneratorInfoName,
			GeneratorInfoURL:  doc.GeneratorInfoURL,
			Source:            doc.Source,
			Comment:           doc.Comment,
		},
		lang:     consts.DEFAULT_LANG,
		channels: make(map[string]int),
	}
	for _, ch := range doc.Channels {
		if err := b.addChannel(ch); err != nil {
			return nil, err
		}
	}
	for _, p := range doc.Programmes {
		if err := validateProgramme(&p); err != nil {
			return nil, err
		}
		b.doc.Programmes = append(b.doc.Programmes, p)
	}
	return b, nil
}

// AddChannel appends a channel. Adding an id that already exists merges any
// display names not yet present, keeping first-seen order.
func (b *Builder) AddChannel(id string, displayNames ...string) error {
	ch := Channel{ID: strings.TrimSpace(id)}
	for _, name := range displayNames {
		if name = strings.TrimSpace(name); name != "" {
			ch.DisplayNames = append(ch.DisplayNames, Text{Value: name})
		}
	}
	return b.addChannel(ch)
}

func (b *Builder) addChannel(ch Channel) error {
	if ch.ID == "" {
		return ErrEmptyChannelID
	}
	if firstText(ch.DisplayNames) == "" {
		return fmt.Errorf("%w: channel %s", ErrNoDisplayName, ch.ID)
	}
	idx, ok := b.channels[ch.ID]
	if !ok {
		b.channels[ch.ID] = len(b.doc.Channels)
		b.doc.Channels = append(b.doc.Channels, Channel{ID: ch.ID, DisplayNames: uniqueTexts(nil, ch.DisplayNames)})
		return nil
	}
	existing := &b.doc.Channels[idx]
	existing.DisplayNames = uniqueTexts(existing.DisplayNames, ch.DisplayNames)
	return nil
}

// AddProgramme validates and appends a programme. The channel reference is
// not checked against the added channels.
func (b *Builder) AddProgramme(a Airing) error {
	p := Programme{
		Channel: strings.TrimSpace(a.Channel),
		Start:   Time{a.Start},
		Stop:    Time{a.Stop},
		Titles:  []Text{{Lang: b.lang, Value: strings.TrimSpace(a.Title)}},
	}
	if sub := strings.TrimSpace(a.SubTitle); sub != "" {
		p.SubTitles = []Text{{Lang: b.lang, Value: sub}}
	}
	if desc := strings.TrimSpace(a.Description); desc != "" {
		p.Descs = []Text{{Lang: b.lang, Value: desc}}
	}
	if a.Length > 0 {
		minutes := (a.Length + time.Minute - 1) / time.Minute
		p.Length = &Length{Units: "minutes", Value: strconv.Itoa(int(minutes))}
	}
	if err := validateProgramme(&p); err != nil {
		return err
	}
	b.doc.Programmes = append(b.doc.Programmes, p)
	return nil
}

func validateProgramme(p *Programme) error {
	if p.Channel == "" {
		return ErrEmptyChannelID
	}
	if p.Title() == "" {
		return fmt.Errorf("%w: channel %s at %s", ErrEmptyTitle, p.Channel, FormatTime(p.Start.Time))
	}
	if p.Start.IsZero() || p.Stop.IsZero() {
		return fmt.Errorf("%w: %q on %s has no start or stop", ErrInvalidTime, p.Title(), p.Channel)
	}
	if !p.Start.Before(p.Stop.Time) {
		return &InvalidTimeRangeError{Channel: p.Channel, Title: p.Title(), Start: p.Start.Time, Stop: p.Stop.Time}
	}
	return nil
}

// MarkFallback flags the document as placeholder data and records why.
func (b *Builder) MarkFallback(reason string) {
	b.doc.Source = SourceFallback
	b.doc.Comment = " fallback: " + commentSafe(strings.TrimSpace(reason)) + " "
}

// commentSafe breaks up every "--", which XML comments may not contain.
func commentSafe(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "- -")
	}
	return s
}

func (b *Builder) IsFallback() bool {
	return b.doc.Source == SourceFallback
}

func (b *Builder) ChannelCount() int {
	return len(b.doc.Channels)
}

func (b *Builder) ProgrammeCount() int {
	return len(b.doc.Programmes)
}

// Document returns a copy of the document built so far.
func (b *Builder) Document() Document {
	doc := b.doc
	doc.Channels = append([]Channel(nil), b.doc.Channels...)
	doc.Programmes = append([]Programme(nil), b.doc.Programmes...)
	return doc
}

// Serialize returns the XML declaration followed by the indented document.
func (b *Builder) Serialize() ([]byte, error) {
	data, err := xml.MarshalIndent(&b.doc, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(data)+1)
	out = append(out, xml.Header...)
	out = append(out, data...)
	return append(out, '\n'), nil
}

func uniqueTexts(dst, src []Text) []Text {
	for _, t := range src {
		if t.Value == "" {
			continue
		}
		dup := false
		for _, e := range dst {
			if e.Value == t.Value {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, t)
		}
	}
	return dst
}
