// Package lineup maps the labels different guide sources use for a station
// (call signs, network names, display names) onto local channel numbers.
package lineup

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed sandiego.yaml
var sanDiegoYAML []byte

var callSignRe = regexp.MustCompile(`(?i)^[KW][A-Z]{2,3}(?:-?[A-Z0-9]+)*$`)

type Channel struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Network  string   `yaml:"network"`
	CallSign string   `yaml:"callsign"`
	Aliases  []string `yaml:"aliases"`
}

// Unmapped is returned by lookups that match no channel. It has no ID.
var Unmapped = Channel{Name: "Unmapped"}

func (c Channel) Mapped() bool {
	return c.ID != ""
}

// DisplayNames returns the channel name followed by its call sign.
func (c Channel) DisplayNames() []string {
	names := []string{c.Name}
	if c.CallSign != "" && !strings.EqualFold(c.CallSign, c.Name) {
		names = append(names, c.CallSign)
	}
	return names
}

func (c Channel) keys() []string {
	keys := make([]string, 0, len(c.Aliases)+2)
	keys = append(keys, c.CallSign, c.Name)
	return append(keys, c.Aliases...)
}

// stationKeys is the call sign plus aliases shaped like call signs. Network
// names are left out since every market has an affiliate using them.
func (c Channel) stationKeys() []string {
	keys := []string{c.CallSign}
	for _, alias := range c.Aliases {
		if callSignRe.MatchString(alias) {
			keys = append(keys, alias)
		}
	}
	return keys
}

type Table struct {
	Version  int       `yaml:"version"`
	Region   string    `yaml:"region"`
	Channels []Channel `yaml:"channels"`

	byID map[string]int
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded San Diego table.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(sanDiegoYAML)
		if err != nil {
			panic(fmt.Sprintf("lineup: embedded table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Load reads a table from path. An empty path returns the embedded table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lineup %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lineup %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML table. Channel ids must be unique.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshaling lineup: %w", err)
	}
	if len(t.Channels) == 0 {
		return nil, fmt.Errorf("lineup has no channels")
	}
	t.byID = make(map[string]int, len(t.Channels))
	for i, ch := range t.Channels {
		if ch.ID == "" || ch.Name == "" {
			return nil, fmt.Errorf("channel %d needs an id and a name", i)
		}
		if _, dup := t.byID[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate channel id %s", ch.ID)
		}
		t.byID[ch.ID] = i
	}
	return &t, nil
}

// ByID returns the channel numbered id.
func (t *Table) ByID(id string) (Channel, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Unmapped, false
	}
	return t.Channels[i], true
}

// Lookup resolves a single label, ignoring case. Exact matches against a
// channel id, call sign, name or alias win over matches found inside a longer
// label such as "ABC (KGTV) San Diego, CA".
func (t *Table) Lookup(label string) Channel {
	return t.LookupAny(label)
}

// LookupAny tries each label for an exact match, then each label for a
// token match.
func (t *Table) LookupAny(labels ...string) Channel {
	return t.lookup(Channel.keys, labels)
}

// LookupStation is LookupAny restricted to ids and call signs. Use it for
// national feeds where "ABC (WABC) New York, NY" must not land on the local
// ABC affiliate.
func (t *Table) LookupStation(labels ...string) Channel {
	return t.lookup(Channel.stationKeys, labels)
}

func (t *Table) lookup(keys func(Channel) []string, labels []string) Channel {
	for _, label := range labels {
		if ch, ok := t.exact(label, keys); ok {
			return ch
		}
	}
	for _, label := range labels {
		if ch, ok := t.within(label, keys); ok {
			return ch
		}
	}
	return Unmapped
}

func (t *Table) exact(label string, keys func(Channel) []string) (Channel, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Unmapped, false
	}
	if ch, ok := t.ByID(label); ok {
		return ch, true
	}
	for _, ch := range t.Channels {
		for _, key := range keys(ch) {
			if key != "" && strings.EqualFold(key, label) {
				return ch, true
			}
		}
	}
	return Unmapped, false
}

// within finds the channel whose longest key appears in label on token
// boundaries. Ties go to the earlier channel.
func (t *Table) within(label string, keys func(Channel) []string) (Channel, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return Unmapped, false
	}
	best, bestLen := -1, 0
	for i, ch := range t.Channels {
		for _, key := range keys(ch) {
			key = strings.ToUpper(key)
			if len(key) > bestLen && containsToken(label, key) {
				best, bestLen = i, len(key)
			}
		}
	}
	if best < 0 {
		return Unmapped, false
	}
	return t.Channels[best], true
}

func containsToken(s, key string) bool {
	if key == "" {
		return false
	}
	for from := 0; from <= len(s)-len(key); {
		i := strings.Index(s[from:], key)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(key)
		if boundary(s, i-1) && boundary(s, end) {
			return true
		}
		from = i + 1
	}
	return false
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
