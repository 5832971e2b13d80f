// Package config assembles run settings from defaults, an optional YAML
// file, the process environment and a local .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials means the wearable account cannot be reached.
var ErrMissingCredentials = errors.New("GARMIN_EMAIL and GARMIN_PASSWORD are required")

// Store backends.
const (
	StoreSheets = "sheets"
	StoreSQLite = "sqlite"
)

type Sheets struct {
	Daily      string `yaml:"daily"`
	Morning    string `yaml:"morning"`
	Activities string `yaml:"activities"`
	Log        string `yaml:"log"`
}

// Lookback is how many calendar days, today included, each metric may walk
// back to find a reading.
type Lookback struct {
	HRV    int `yaml:"hrv"`
	Sleep  int `yaml:"sleep"`
	Weight int `yaml:"weight"`
}

// Credentials come from the environment only.
type Credentials struct {
	GarminEmail    string `yaml:"-"`
	GarminPassword string `yaml:"-"`
	GeminiAPIKey   string `yaml:"-"`
	GoogleCreds    string `yaml:"-"`
	TelegramToken  string `yaml:"-"`
	TelegramChatID string `yaml:"-"`
}

type Config struct {
	SpreadsheetID string   `yaml:"spreadsheet_id"`
	Sheets        Sheets   `yaml:"sheets"`
	AssumedMaxHR  float64  `yaml:"assumed_max_hr"`
	Lookback      Lookback `yaml:"lookback"`
	StrideMeters  float64  `yaml:"stride_m"`

	// Models are tried in order until one answers.
	Models         []string `yaml:"models"`
	Prompt         string   `yaml:"prompt"`
	FallbackAdvice string   `yaml:"fallback_advice"`

	// Store selects the row backend; empty picks sheets when Google
	// credentials are present and sqlite otherwise.
	Store  string `yaml:"store"`
	DBPath string `yaml:"db_path"`

	// Per-request timeouts for the wearable API and each model call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AITimeout      time.Duration `yaml:"ai_timeout"`

	Credentials Credentials `yaml:"-"`

	envWarnings []string
}

// DefaultPrompt uses {hrv}, {rhr}, {battery}, {sleep}, {score} and {steps}
// placeholders.
const DefaultPrompt = "Biometrics: HRV {hrv} ms, resting HR {rhr} bpm, body battery {battery}, " +
	"sleep {sleep} h (score {score}), steps {steps}. " +
	"Write one ironic and wise piece of advice for the day, two sentences at most."

func Default() Config {
	return Config{
		Sheets: Sheets{
			Daily:      "Daily",
			Morning:    "Morning",
			Activities: "Activities",
			Log:        "AI_Log",
		},
		AssumedMaxHR:   185,
		Lookback:       Lookback{HRV: 3, Sleep: 2, Weight: 3},
		StrideMeters:   0.762,
		Models:         []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"},
		Prompt:         DefaultPrompt,
		FallbackAdvice: "No data to analyze today. Listen to your body.",
		RequestTimeout: 30 * time.Second,
		AITimeout:      30 * time.Second,
	}
}

// Load builds the config. path may be empty. A .env file in the working
// directory is loaded without overriding variables already set.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	c.Credentials = Credentials{
		GarminEmail:    env("GARMIN_EMAIL"),
		GarminPassword: env("GARMIN_PASSWORD"),
		GeminiAPIKey:   env("GEMINI_API_KEY"),
		GoogleCreds:    env("GOOGLE_CREDS"),
		TelegramToken:  env("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: env("TELEGRAM_CHAT_ID"),
	}
	if v := env("SPREADSHEET_ID"); v != "" {
		c.SpreadsheetID = v
	}
	if v := env("ASSUMED_MAX_HR"); v != "" {
		hr, err := strconv.ParseFloat(v, 64)
		if err != nil || hr <= 0 {
			c.envWarnings = append(c.envWarnings, fmt.Sprintf("ASSUMED_MAX_HR %q ignored, keeping %v", v, c.AssumedMaxHR))
		} else {
			c.AssumedMaxHR = hr
		}
	}
}

// Validate reports settings the run cannot start without.
func (c Config) Validate() error {
	if c.Credentials.GarminEmail == "" || c.Credentials.GarminPassword == "" {
		return ErrMissingCredentials
	}
	if c.AssumedMaxHR <= 0 {
		return fmt.Errorf("assumed_max_hr must be positive, got %v", c.AssumedMaxHR)
	}
	return nil
}

// Warnings lists settings that were ignored or will make the run fall back
// to a lesser backend. None of them stop the run.
func (c Config) Warnings() []string {
	out := append([]string(nil), c.envWarnings...)
	switch c.Store {
	case "", StoreSQLite:
	case StoreSheets:
		if !c.hasSheets() {
			out = append(out, "sheets store needs GOOGLE_CREDS and SPREADSHEET_ID, using the local mirror")
		}
	default:
		out = append(out, fmt.Sprintf("unknown store %q, using the local mirror", c.Store))
	}
	return out
}

// StoreKind resolves the effective row backend. An explicit sheets store
// without credentials, or an unknown store, resolves to sqlite.
func (c Config) StoreKind() string {
	switch {
	case c.Store == StoreSQLite:
		return StoreSQLite
	case c.Store == StoreSheets || c.Store == "":
		if c.hasSheets() {
			return StoreSheets
		}
	}
	return StoreSQLite
}

func (c Config) hasSheets() bool {
	return c.Credentials.GoogleCreds != "" && c.SpreadsheetID != ""
}

func (c Config) HasAI() bool { return c.Credentials.GeminiAPIKey != "" }

func (c Config) HasTelegram() bool {
	return c.Credentials.TelegramToken != "" && c.Credentials.TelegramChatID != ""
}
