package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0" validate:"required"`
	Port     int    `env:"PORT,default=8000" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	HistoryLimit     int           `env:"HISTORY_LIMIT,default=100" validate:"min=1"`
	BackfillSize     int           `env:"BACKFILL_SIZE,default=20" validate:"min=0,ltefield=HistoryLimit"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=500" validate:"min=1"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT,default=5s" validate:"gt=0"`
	ReadLimit        int64         `env:"READ_LIMIT,default=8192" validate:"min=64"`
	AllowedOrigins   string        `env:"ALLOWED_ORIGINS,default=*"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=10s" validate:"gt=0"`
	ReportInterval  time.Duration `env:"REPORT_INTERVAL,default=1m" validate:"gt=0"`

	ArchiveEnabled    bool          `env:"ARCHIVE_ENABLED,default=false"`
	ArchiveBufferSize int           `env:"ARCHIVE_BUFFER_SIZE,default=256" validate:"min=1"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,default=./data/badger" validate:"required_if=ArchiveEnabled true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,default=./data/bluge" validate:"required_if=ArchiveEnabled true"`
	ArchivePageSize   int           `env:"ARCHIVE_PAGE_SIZE,default=50" validate:"min=1,max=1000"`
	DebugPort         int           `env:"DEBUG_PORT,default=8081" validate:"min=1,max=65535"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=false"`
	CensoredFilepath  string `env:"CENSORED_FILEPATH,default=./censored" validate:"required_if=ModerationEnabled true"`
	CharReplacement   string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
}

// Validate checks struct constraints, then the replacement character.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits ALLOWED_ORIGINS on commas, dropping blanks.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
