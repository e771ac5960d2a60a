package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// Parse decodes a complete XMLTV document.
func Parse(r io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel

	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode xmltv: %w", err)
	}
	return &doc, nil
}

// Parser streams channels and programmes out of a large XMLTV feed without
// holding the whole document in memory.
type Parser struct {
	// OnChannel is called for each channel element.
	OnChannel func(ch *Channel) error
	// OnProgramme is called for each programme element.
	OnProgramme func(p *Programme) error
	// OnError receives elements that could not be decoded; they are skipped.
	OnError func(err error)
}

// Parse reads r until EOF. A callback error stops parsing and is returned.
func (p *Parser) Parse(r io.Reader) error {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel

	sawRoot := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading xmltv token: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "tv":
			sawRoot = true
		case "channel":
			if p.OnChannel == nil {
				_ = decoder.Skip()
				continue
			}
			var ch Channel
			if err := decoder.DecodeElement(&ch, &start); err != nil {
				p.handleError(fmt.Errorf("channel: %w", err))
				continue
			}
			if err := p.OnChannel(&ch); err != nil {
				return err
			}
		case "programme":
			if p.OnProgramme == nil {
				_ = decoder.Skip()
				continue
			}
			var prog Programme
			if err := decoder.DecodeElement(&prog, &start); err != nil {
				p.handleError(fmt.Errorf("programme: %w", err))
				_ = decoder.Skip()
				continue
			}
			if err := p.OnProgramme(&prog); err != nil {
				return err
			}
		}
	}
	if !sawRoot {
		return fmt.Errorf("malformed xmltv: <tv> root not found")
	}
	return nil
}

func (p *Parser) handleError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}
