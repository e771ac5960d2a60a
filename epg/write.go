package epg

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const historyStamp = "20060102150405"

// Write replaces path with data via a temporary file in the same directory.
// Paths ending in .gz are gzip compressed.
func Write(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("no output path")
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var w io.Writer = tmp
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(tmp)
		w = zw
	}
	if _, err := w.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			tmp.Close()
			return fmt.Errorf("compressing %s: %w", tmpName, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		zap.L().Error("Failed to rename guide into place.", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

// splitExt separates "guide.xml.gz" into "guide" and ".xml.gz".
func splitExt(path string) (string, string) {
	base := path
	ext := ""
	if strings.HasSuffix(base, ".gz") {
		base = strings.TrimSuffix(base, ".gz")
		ext = ".gz"
	}
	inner := filepath.Ext(base)
	return strings.TrimSuffix(base, inner), inner + ext
}

// HistoryPath returns the timestamped copy name for path at t.
func HistoryPath(path string, t time.Time) string {
	stem, ext := splitExt(path)
	return stem + "." + t.Format(historyStamp) + ext
}

// KeepHistory copies path to a timestamped sibling and removes copies older
// than days.
func KeepHistory(path string, days int, now time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(HistoryPath(path, now), data, 0644); err != nil {
		return err
	}
	return pruneHistory(path, now.AddDate(0, 0, -days))
}

func pruneHistory(path string, cutoff time.Time) error {
	stem, ext := splitExt(path)
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(filepath.Base(stem)) + `\.(\d{14})` + regexp.QuoteMeta(ext) + "$")

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		stamp, err := time.ParseInLocation(historyStamp, m[1], cutoff.Location())
		if err != nil || !stamp.Before(cutoff) {
			continue
		}
		old := filepath.Join(filepath.Dir(path), entry.Name())
		if err := os.Remove(old); err != nil {
			zap.L().Warn("Failed to remove old guide.", zap.String("path", old), zap.Error(err))
			continue
		}
		zap.L().Debug("Removed old guide.", zap.String("path", old))
	}
	return nil
}
