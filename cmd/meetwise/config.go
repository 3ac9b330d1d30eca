package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all meetwise configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath         string `json:"db_path"`
	CalendarPath   string `json:"calendar_path"`
	TranscriptsDir string `json:"transcripts_dir"`
	Model          string `json:"model"`
	LogLevel       string `json:"log_level"`
	DeltaSchedule  string `json:"delta_schedule"`
	UserID         int64  `json:"user_id"`
}

func defaultConfig() Config {
	dir := meetwiseDir()
	return Config{
		DBPath:         filepath.Join(dir, "meetwise.db"),
		CalendarPath:   filepath.Join(dir, "calendar.json"),
		TranscriptsDir: filepath.Join(dir, "transcripts"),
		Model:          "gpt-4o-mini",
		LogLevel:       "info",
		DeltaSchedule:  "*/30 * * * *",
		UserID:         1,
	}
}

func meetwiseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meetwise"
	}
	return filepath.Join(home, ".meetwise")
}

func settingsPath() string {
	return filepath.Join(meetwiseDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("MEETWISE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MEETWISE_CALENDAR_PATH"); v != "" {
		cfg.CalendarPath = v
	}
	if v := os.Getenv("MEETWISE_TRANSCRIPTS_DIR"); v != "" {
		cfg.TranscriptsDir = v
	}
	if v := os.Getenv("MEETWISE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("MEETWISE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MEETWISE_DELTA_SCHEDULE"); v != "" {
		cfg.DeltaSchedule = v
	}
	if v := os.Getenv("MEETWISE_USER_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.UserID = n
		}
	}

	return cfg
}
