package config

import (
	stderrors "errors"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"prepost/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Input    InputConfig    `validate:"required"`
	Analysis AnalysisConfig `validate:"required"`
	Output   OutputConfig   `validate:"required"`
	Database DatabaseConfig
	Log      LogConfig
}

// InputConfig holds the locations of raw and cleaned survey data
type InputConfig struct {
	RawDir string
	// SourcesFile is a YAML list of sheets replacing the default workbooks
	SourcesFile string
	CleanFile   string `validate:"required"`
}

// AnalysisConfig holds reshape and pairwise comparison settings
type AnalysisConfig struct {
	Treatment  string  `validate:"required"`
	Response   string  `validate:"required"`
	Groupby    string  `validate:"required"`
	Confidence float64 `validate:"gt=0,lt=1"`
	Workers    int     `validate:"min=1"`
	IDColumns  []string
}

// OutputConfig holds output locations and formats
type OutputConfig struct {
	Dir          string `validate:"required"`
	WriteHTML    bool
	WriteFigures bool
}

// DatabaseConfig holds the optional results store connection
type DatabaseConfig struct {
	URL string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `validate:"oneof=debug info warn error"`
	Development bool
}

// Load reads configuration from environment variables, after merging the
// given .env files when they exist, and validates it
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", file)
		}
	}

	env := &envReader{}
	config := &Config{
		Input:    *loadInputConfig(env),
		Analysis: *loadAnalysisConfig(env),
		Output:   *loadOutputConfig(env),
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Log:      *loadLogConfig(env),
	}
	if err := env.Err(); err != nil {
		return nil, err
	}

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks struct constraints; CLI flag overrides call it again
func Validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "configuration validation failed"))
	}
	return nil
}

func loadInputConfig(env *envReader) *InputConfig {
	return &InputConfig{
		RawDir:      env.String("PREPOST_RAW_DIR", "data/raw"),
		SourcesFile: os.Getenv("PREPOST_SOURCES"),
		CleanFile:   env.String("PREPOST_DATA_FILE", "data/processed/girls_rock_data.csv"),
	}
}

func loadAnalysisConfig(env *envReader) *AnalysisConfig {
	return &AnalysisConfig{
		Treatment:  env.String("LSD_TREATMENT", "race/ethnicity"),
		Response:   env.String("LSD_RESPONSE", "delta"),
		Groupby:    env.String("LSD_GROUPBY", "question"),
		Confidence: env.Float("LSD_CONFIDENCE", 0.95),
		Workers:    env.Int("LSD_WORKERS", 4),
		IDColumns:  env.List("RESHAPE_ID_COLUMNS", nil),
	}
}

func loadOutputConfig(env *envReader) *OutputConfig {
	return &OutputConfig{
		Dir:          env.String("OUTPUT_DIR", "data/processed"),
		WriteHTML:    env.Bool("OUTPUT_HTML", true),
		WriteFigures: env.Bool("OUTPUT_FIGURES", true),
	}
}

func loadLogConfig(env *envReader) *LogConfig {
	return &LogConfig{
		Level:       strings.ToLower(env.String("LOG_LEVEL", "info")),
		Development: env.Bool("LOG_DEVELOPMENT", false),
	}
}

// envReader reads typed environment variables, falling back to a default
// when a variable is unset and recording every value that does not parse.
type envReader struct {
	errs []error
}

func (r *envReader) String(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) Int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		r.invalid(key, value, "an integer", err)
		return defaultValue
	}
	return intValue
}

func (r *envReader) Float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		r.invalid(key, value, "a number", err)
		return defaultValue
	}
	return floatValue
}

func (r *envReader) Bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		r.invalid(key, value, "a boolean", err)
		return defaultValue
	}
	return boolValue
}

func (r *envReader) List(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *envReader) invalid(key, value, want string, cause error) {
	r.errs = append(r.errs, errors.Wrapf(cause, "%s=%q is not %s", key, value, want))
}

// Err reports every unparseable variable as one configuration error
func (r *envReader) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return errors.WithCode(errors.CodeConfigInvalid,
		errors.Wrap(stderrors.Join(r.errs...), "invalid environment"))
}
