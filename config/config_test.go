package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeIni(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "epg.ini")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("zap2it", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if c.ZipCode != "92108" || c.Country != "USA" || c.Lang != "en" || c.Device != "-" {
		t.Errorf("unexpected defaults %+v", c)
	}
	if c.HasCredentials() {
		t.Error("defaults must not carry credentials")
	}
	if loc, _ := c.Location(); loc != time.Local {
		t.Errorf("default location should be local, got %v", loc)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeIni(t, `
[prefs]
zipCode = 92101
lang = en-us
timezone = America/Los_Angeles
historicalGuideDays = 3

[creds]
username = viewer@example.com
password = hunter2

[lineup]
lineupId = USA-OTA92101
headendId = lineupId
file = /etc/epg/lineup.yaml
`)
	c, err := Load("zap2it", path, true)
	if err != nil {
		t.Fatal(err)
	}
	if c.ZipCode != "92101" || c.Lang != "en-us" || c.HistoricalGuideDays != 3 {
		t.Errorf("unexpected prefs %+v", c)
	}
	if !c.HasCredentials() || c.LineupID != "USA-OTA92101" || c.LineupFile != "/etc/epg/lineup.yaml" {
		t.Errorf("unexpected creds or lineup %+v", c)
	}
	loc, err := c.Location()
	if err != nil || loc.String() != "America/Los_Angeles" {
		t.Errorf("unexpected location %v: %v", loc, err)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeIni(t, "[prefs]\nzipCode = 92101\n")
	t.Setenv("ZAP2IT_PREFS_ZIPCODE", "92037")
	t.Setenv("ZAP2IT_CREDS_PASSWORD", "from-env")
	t.Setenv("TVMAZE_PREFS_ZIPCODE", "00000")

	c, err := Load("zap2it", path, true)
	if err != nil {
		t.Fatal(err)
	}
	if c.ZipCode != "92037" {
		t.Errorf("env override ignored: %s", c.ZipCode)
	}
	if c.Password != "from-env" {
		t.Errorf("env override ignored for password: %q", c.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.ini")
	if _, err := Load("zap2it", missing, true); !errors.Is(err, ErrMissing) {
		t.Errorf("expected ErrMissing, got %v", err)
	}
	c, err := Load("tvmaze", missing, false)
	if err != nil {
		t.Fatalf("optional config should fall back to defaults: %v", err)
	}
	if c.ZipCode != "92108" {
		t.Errorf("unexpected zip %s", c.ZipCode)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	if _, err := Load("ota", writeIni(t, "[prefs]\ntimezone = Mars/Olympus\n"), true); err == nil {
		t.Error("expected error for unknown timezone")
	}
	if _, err := Load("ota", writeIni(t, "[prefs]\nhistoricalGuideDays = -2\n"), true); err == nil {
		t.Error("expected error for negative retention")
	}
}
