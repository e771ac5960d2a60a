// Package xmltv builds, parses and streams XMLTV guide documents.
package xmltv

import (
	"encoding/xml"
	"time"

	"homelab-epg/consts"
)

// Source values for the root "source" attribute.
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
)

// Document is the tv root element. Channels always precede programmes.
type Document struct {
	XMLName           xml.Name    `xml:"tv"`
	SourceInfoURL     string      `xml:"source-info-url,attr,omitempty"`
	SourceInfoName    string      `xml:"source-info-name,attr,omitempty"`
	GeneratorInfoName string      `xml:"generator-info-name,attr,omitempty"`
	GeneratorInfoURL  string      `xml:"generator-info-url,attr,omitempty"`
	Source            string      `xml:"source,attr,omitempty"`
	Comment           string      `xml:",comment"`
	Channels          []Channel   `xml:"channel"`
	Programmes        []Programme `xml:"programme"`
}

type Channel struct {
	ID           string `xml:"id,attr"`
	DisplayNames []Text `xml:"display-name"`
}

type Programme struct {
	Channel   string  `xml:"channel,attr"`
	Start     Time    `xml:"start,attr"`
	Stop      Time    `xml:"stop,attr"`
	Titles    []Text  `xml:"title"`
	SubTitles []Text  `xml:"sub-title,omitempty"`
	Descs     []Text  `xml:"desc,omitempty"`
	Length    *Length `xml:"length,omitempty"`
}

// Title returns the first non-empty title.
func (p *Programme) Title() string {
	return firstText(p.Titles)
}

func (p *Programme) SubTitle() string {
	return firstText(p.SubTitles)
}

func (p *Programme) Desc() string {
	return firstText(p.Descs)
}

// Text is an element with optional lang attribute, e.g. <title lang="en">News</title>.
type Text struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type Length struct {
	Units string `xml:"units,attr"`
	Value string `xml:",chardata"`
}

// Time marshals as an XMLTV timestamp attribute.
type Time struct {
	time.Time
}

func (t Time) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: FormatTime(t.Time)}, nil
}

func (t *Time) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := ParseTime(attr.Value)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// FormatTime renders t as "YYYYMMDDHHMMSS ±HHMM" in t's own zone.
func FormatTime(t time.Time) string {
	return t.Format(consts.TIME_FORMAT)
}

func firstText(texts []Text) string {
	for _, t := range texts {
		if t.Value != "" {
			return t.Value
		}
	}
	return ""
}
