package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/memorelay/memorelay/internal/pipeline"
)

type Config struct {
	Addr          string
	ChannelSecret string

	ChatBaseURL string
	ChatToken   string

	DriveBaseURL     string
	DriveLinkBaseURL string
	DriveToken       string

	SheetsBaseURL string
	SpreadsheetID string
	SheetsToken   string

	OracleBaseURL string
	OracleModel   string
	OracleAPIKey  string

	QueueDSN      string
	QueueCapacity int

	ScratchDir   string
	DropDir      string
	LedgerAppend string

	UploadMaxAttempts int
	UploadBaseDelay   time.Duration
	UploadMultiplier  int

	MaxBodyBytes int64
}

func configFromEnv() Config {
	return Config{
		Addr:          strEnv("MEMORELAY_ADDR", ":8080"),
		ChannelSecret: os.Getenv("MEMORELAY_CHANNEL_SECRET"),

		ChatBaseURL: os.Getenv("MEMORELAY_CHAT_BASE_URL"),
		ChatToken:   os.Getenv("MEMORELAY_CHAT_TOKEN"),

		DriveBaseURL:     os.Getenv("MEMORELAY_DRIVE_BASE_URL"),
		DriveLinkBaseURL: os.Getenv("MEMORELAY_DRIVE_LINK_BASE_URL"),
		DriveToken:       os.Getenv("MEMORELAY_DRIVE_TOKEN"),

		SheetsBaseURL: os.Getenv("MEMORELAY_SHEETS_BASE_URL"),
		SpreadsheetID: os.Getenv("MEMORELAY_SPREADSHEET_ID"),
		SheetsToken:   os.Getenv("MEMORELAY_SHEETS_TOKEN"),

		OracleBaseURL: os.Getenv("MEMORELAY_ORACLE_BASE_URL"),
		OracleModel:   os.Getenv("MEMORELAY_ORACLE_MODEL"),
		OracleAPIKey:  os.Getenv("MEMORELAY_ORACLE_API_KEY"),

		QueueDSN:      strEnv("MEMORELAY_QUEUE_DSN", "memory:"),
		QueueCapacity: intEnv("MEMORELAY_QUEUE_CAPACITY", 0),

		ScratchDir:   os.Getenv("MEMORELAY_SCRATCH_DIR"),
		DropDir:      os.Getenv("MEMORELAY_DROP_DIR"),
		LedgerAppend: strEnv("MEMORELAY_LEDGER_APPEND", string(pipeline.AppendTop)),

		UploadMaxAttempts: intEnv("MEMORELAY_UPLOAD_MAX_ATTEMPTS", 0),
		UploadBaseDelay:   durationEnv("MEMORELAY_UPLOAD_BASE_DELAY", 0),
		UploadMultiplier:  intEnv("MEMORELAY_UPLOAD_MULTIPLIER", 0),

		MaxBodyBytes: int64Env("MEMORELAY_MAX_BODY_BYTES", 0),
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.ChannelSecret, validation.Required),
		validation.Field(&c.SpreadsheetID, validation.Required),
		validation.Field(&c.QueueDSN, validation.Required),
		validation.Field(&c.LedgerAppend, validation.In(
			string(pipeline.AppendTop), string(pipeline.AppendBottom))),
		validation.Field(&c.QueueCapacity, validation.Min(0)),
		validation.Field(&c.UploadMaxAttempts, validation.Min(0)),
		validation.Field(&c.UploadMultiplier, validation.Min(0)),
	)
}

func strEnv(name, fallback string) string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	return raw
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid env value, using fallback",
			slog.String("name", name),
			slog.String("value", raw),
			slog.Int("fallback", fallback))
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid env value, using fallback",
			slog.String("name", name),
			slog.String("value", raw),
			slog.Int64("fallback", fallback))
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid env value, using fallback",
			slog.String("name", name),
			slog.String("value", raw),
			slog.String("fallback", fallback.String()))
		return fallback
	}
	return value
}
