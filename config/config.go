// Package config reads generator settings from an ini file. Every key can be
// overridden by an environment variable named <SOURCE>_<SECTION>_<KEY>, for
// example ZAP2IT_PREFS_ZIPCODE.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"

	"homelab-epg/consts"
)

var ErrMissing = errors.New("config file not found")

type Config struct {
	Source string

	ZipCode             string
	Country             string
	Lang                string
	Timezone            string
	HistoricalGuideDays int

	Username string
	Password string

	LineupID   string
	HeadendID  string
	Device     string
	LineupFile string
}

// keys lists every recognized section and key.
var keys = map[string][]string{
	"prefs":  {"zipCode", "country", "lang", "timezone", "historicalGuideDays"},
	"creds":  {"username", "password"},
	"lineup": {"lineupId", "headendId", "device", "file"},
}

// Load reads path for source. An empty or missing path yields defaults
// unless required is set.
func Load(source, path string, required bool) (*Config, error) {
	file, err := open(path, required)
	if err != nil {
		return nil, err
	}
	applyEnv(file, source)

	prefs := file.Section("prefs")
	creds := file.Section("creds")
	lineup := file.Section("lineup")
	c := &Config{
		Source:              source,
		ZipCode:             prefs.Key("zipCode").MustString(consts.DEFAULT_ZIP),
		Country:             prefs.Key("country").MustString("USA"),
		Lang:                prefs.Key("lang").MustString(consts.DEFAULT_LANG),
		Timezone:            prefs.Key("timezone").String(),
		HistoricalGuideDays: prefs.Key("historicalGuideDays").MustInt(0),
		Username:            creds.Key("username").String(),
		Password:            creds.Key("password").String(),
		LineupID:            lineup.Key("lineupId").String(),
		HeadendID:           lineup.Key("headendId").String(),
		Device:              lineup.Key("device").MustString("-"),
		LineupFile:          lineup.Key("file").String(),
	}
	if c.HistoricalGuideDays < 0 {
		return nil, fmt.Errorf("prefs.historicalGuideDays must not be negative, got %d", c.HistoricalGuideDays)
	}
	if _, err := c.Location(); err != nil {
		return nil, err
	}
	return c, nil
}

func open(path string, required bool) (*ini.File, error) {
	if path == "" {
		if required {
			return nil, fmt.Errorf("%w: no path given", ErrMissing)
		}
		return ini.Empty(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if required {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		zap.L().Info("Config file not found, using defaults.", zap.String("path", path))
		return ini.Empty(), nil
	}
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return file, nil
}

func applyEnv(file *ini.File, source string) {
	prefix := strings.ToUpper(source)
	for section, names := range keys {
		for _, name := range names {
			env := strings.ToUpper(prefix + "_" + section + "_" + name)
			if v, ok := os.LookupEnv(env); ok {
				file.Section(section).Key(name).SetValue(v)
			}
		}
	}
}

// HasCredentials reports whether both username and password are set.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// Location resolves prefs.timezone, defaulting to the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("prefs.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
