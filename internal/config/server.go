package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

type ServerConfig struct {
	Port             string        `mapstructure:"port"`
	CORSOrigins      []string      `mapstructure:"cors_origins"`
	ValidateRequests bool          `mapstructure:"validate_requests"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	EventsHeartbeat  time.Duration `mapstructure:"events_heartbeat"` // status cadence on the alert event stream
}

type WebSocketConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
	Compression    bool          `mapstructure:"compression"` // zstd for protobuf frames
}

type NotifyConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Server        string `mapstructure:"server"`
	Topic         string `mapstructure:"topic"`
	Priority      string `mapstructure:"priority"`
	Tags          string `mapstructure:"tags"`
	Token         string `mapstructure:"token"`
	MinSeverity   string `mapstructure:"min_severity"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

// ReplayConfig locates recorded sessions laid out as <data_dir>/<YYYY-MM-DD>/.
type ReplayConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	Date          string `mapstructure:"date"` // "latest" picks the newest folder
	SnapshotsFile string `mapstructure:"snapshots_file"`
	TicksFile     string `mapstructure:"ticks_file"`
}

// ResolveDir returns the folder for the configured date, detecting the latest
// one when Date is empty or "latest".
func (r ReplayConfig) ResolveDir() (string, string, error) {
	date := r.Date
	if date == "" || date == "latest" {
		detected, err := DetectLatestDate(r.DataDir)
		if err != nil {
			return "", "", fmt.Errorf("failed to detect latest date in %s: %w", r.DataDir, err)
		}
		date = detected
	}
	return filepath.Join(r.DataDir, date), date, nil
}

// DetectLatestDate scans the data directory for date folders and returns the most recent one
func DetectLatestDate(dataDir string) (string, error) {
	datePattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", fmt.Errorf("reading data directory: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if datePattern.MatchString(name) {
			// Skip empty folders
			subPath := filepath.Join(dataDir, name)
			subEntries, err := os.ReadDir(subPath)
			if err == nil && len(subEntries) > 0 {
				dates = append(dates, name)
			}
		}
	}

	if len(dates) == 0 {
		return "", fmt.Errorf("no date folders found in %s", dataDir)
	}

	// YYYY-MM-DD sorts lexicographically
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	return dates[0], nil
}
