package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jai/garmin-briefing/internal/config"
	"github.com/jai/garmin-briefing/internal/garmin"
	"github.com/jai/garmin-briefing/internal/narrative"
	"github.com/jai/garmin-briefing/internal/notify"
	"github.com/jai/garmin-briefing/internal/sheet"
)

var version = "dev"

var (
	configPath string
	dateFlag   string
	storeFlag  string
	dbPath     string
	noAI       bool
	noNotify   bool
	jsonOut    bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "garmin-briefing",
	Short: "Sync Garmin metrics to a spreadsheet and send the daily report",
	Long: `Fetches the day's Garmin Connect metrics, upserts the Daily and Morning
rows, appends new activities, asks Gemini for a short note and posts the
summary to Telegram. Meant to run a few times a day from a scheduler.

Only a failed Garmin login stops the run; every other failure is logged
and the run continues with what it has.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBriefing,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file")
	f.StringVar(&dateFlag, "date", "", "day to sync (YYYY-MM-DD), defaults to today")
	f.StringVar(&storeFlag, "store", "", "row backend: sheets or sqlite")
	f.StringVar(&dbPath, "db", "", "SQLite mirror path (sqlite store)")
	f.BoolVar(&noAI, "no-ai", false, "skip the generated note")
	f.BoolVar(&noNotify, "no-notify", false, "skip the Telegram message")
	f.BoolVar(&jsonOut, "json", false, "print the run report as JSON")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func runBriefing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runID := uuid.NewString()
	base, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer base.Sync()
	log := base.With(zap.String("run_id", runID))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if storeFlag != "" {
		cfg.Store = storeFlag
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Warn("config", zap.String("warning", w))
	}

	target, err := ParseTargetDate(dateFlag, time.Now())
	if err != nil {
		return err
	}

	client, err := garmin.New(garmin.WithTimeout(cfg.RequestTimeout), garmin.WithLogger(log.Named("garmin")))
	if err != nil {
		return err
	}
	if err := client.Login(ctx, cfg.Credentials.GarminEmail, cfg.Credentials.GarminPassword); err != nil {
		log.Error("login failed", zap.Error(err))
		return err
	}

	book := openBook(ctx, cfg, log)
	defer book.Close()

	deps := Deps{
		Source: client,
		Book:   book,
		Config: cfg,
		Log:    log,
	}
	if cfg.HasAI() && !noAI {
		gen, err := narrative.NewGemini(ctx, cfg.Credentials.GeminiAPIKey, cfg.Models, "",
			narrative.WithTimeout(cfg.AITimeout), narrative.WithLogger(log.Named("gemini")))
		if err != nil {
			log.Warn("gemini client unavailable", zap.Error(err))
		} else {
			deps.Generator = gen
		}
	}
	if cfg.HasTelegram() && !noNotify {
		deps.Notifier = notify.NewTelegram(cfg.Credentials.TelegramToken, cfg.Credentials.TelegramChatID)
	}

	report := Run(ctx, target, deps)
	report.RunID = runID
	log.Info("run finished",
		zap.String("date", report.TargetDate),
		zap.Any("writes", report.Writes),
		zap.String("advice_status", report.AdviceStatus),
		zap.Bool("notified", report.Notified),
		zap.Int("errors", len(report.Errors)))

	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintln(out, report.Message)
	return nil
}

// openBook connects the configured row backend. A spreadsheet that cannot be
// opened falls back to the local mirror so fetched data is not lost.
func openBook(ctx context.Context, cfg config.Config, log *zap.Logger) sheet.Book {
	if cfg.StoreKind() == config.StoreSheets {
		book, err := openSheets(ctx, cfg)
		if err == nil {
			return book
		}
		log.Warn("spreadsheet unavailable, writing to local mirror", zap.Error(err))
	}

	path := cfg.DBPath
	if path == "" {
		path = sheet.DefaultDBPath()
	}
	book, err := sheet.OpenSQLite(path)
	if err != nil {
		log.Warn("local mirror unavailable, using in-memory store", zap.String("path", path), zap.Error(err))
		if book, err = sheet.OpenSQLite(":memory:"); err != nil {
			log.Error("in-memory store failed", zap.Error(err))
			return discardBook{}
		}
	}
	log.Info("writing rows to local mirror", zap.String("path", path))
	return book
}

func openSheets(ctx context.Context, cfg config.Config) (sheet.Book, error) {
	creds, err := sheet.ServiceAccount(ctx, cfg.Credentials.GoogleCreds)
	if err != nil {
		return nil, err
	}
	return sheet.NewSheetsBook(ctx, cfg.SpreadsheetID, creds)
}

// ParseTargetDate reads --date in the local zone; empty means today.
func ParseTargetDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", s)
	}
	if t.After(now) {
		return time.Time{}, errors.New("--date is in the future")
	}
	return t, nil
}

// discardBook accepts nothing; every write fails and is reported.
type discardBook struct{}

func (discardBook) Table(name string) sheet.Table { return discardTable(name) }
func (discardBook) Close() error                  { return nil }

type discardTable string

var errNoStore = errors.New("no row store available")

func (t discardTable) Name() string                                 { return string(t) }
func (discardTable) Rows(context.Context) ([][]string, error)       { return nil, errNoStore }
func (discardTable) Append(context.Context, []any) error            { return errNoStore }
func (discardTable) Update(context.Context, int, map[int]any) error { return errNoStore }
