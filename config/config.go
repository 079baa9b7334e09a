package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dhcgn/mailscan-to-drive/feed"
	"github.com/dhcgn/mailscan-to-drive/ledger"
	"github.com/dhcgn/mailscan-to-drive/resolve"
)

const (
	EnvPrefix = "MAILSCAN"
	// LegacyAPIKeyEnv is the variable older deployments export the key in.
	LegacyAPIKeyEnv = "STABLE_API_KEY"

	DestinationDrive = "gdrive"
	DestinationLocal = "local"
)

// Config captures all options required to run one pass.
type Config struct {
	APIKey      string
	FeedURL     string
	Status      string
	PageSize    int
	FeedRate    float64
	FeedRetries int

	Destination      string
	DriveCredentials string
	LocalRoot        string
	RootFolderID     string
	DefaultFolder    string
	MatchPolicy      string
	MatchThreshold   int
	Recursive        bool
	ReuseListing     bool

	Ledger    string
	LedgerDSN string
	StateDir  string

	ScratchDir  string
	HTTPTimeout time.Duration
	DryRun      bool

	LogLevel  string
	LogFormat string
	LogDir    string

	IncludeRecipient []string
	ExcludeRecipient []string

	MetricsPushgateway string
	MetricsJob         string
}

// SecretSource looks up credentials that are not configured anywhere else.
type SecretSource interface {
	Get(key string) (string, error)
}

type LoadOptions struct {
	// RequireAPIKey is set for commands that talk to the feed.
	RequireAPIKey bool
	Secrets       SecretSource
	// SecretKey names the API key entry in Secrets.
	SecretKey string
}

// RegisterFlags attaches all CLI flags to the provided command. They are
// persistent so subcommands share them.
func RegisterFlags(cmd *cobra.Command) error {
	home, err := dataDir()
	if err != nil {
		return err
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Optional config file (yaml, toml or json) using flag names as keys")
	flags.String("env-file", ".env", "Dotenv file loaded into the environment if present")

	flags.String("api-key", "", "Stable API key (falls back to MAILSCAN_API_KEY, STABLE_API_KEY, then the OS keyring)")
	flags.String("feed-url", feed.DefaultURL, "Mail items endpoint")
	flags.String("status", feed.StatusCompleted, "Scan status to fetch")
	flags.Int("page-size", feed.DefaultPageSize, "Items requested per feed page")
	flags.Float64("feed-rate", 5, "Maximum feed requests per second (0 disables pacing)")
	flags.Int("feed-retries", 3, "Retries for a rate-limited feed page")

	flags.String("destination", DestinationDrive, "Destination store: gdrive or local")
	flags.String("drive-credentials", "secrets.json", "Google service account key file")
	flags.String("local-root", "", "Root directory of the local destination")
	flags.String("root-folder-id", "", "Folder that scopes listing and creation (empty: whole drive)")
	flags.String("default-folder", resolve.DefaultFolderName, "Folder for documents without a confident match")
	flags.String("match-policy", string(resolve.PolicyStrict), "Folder match policy: strict or best")
	flags.Int("match-threshold", 0, "Minimum match score 0-100 (0: policy default)")
	flags.Bool("recursive", false, "Match against every nested folder below the root")
	flags.Bool("reuse-listing", false, "List destination folders once per run instead of per item")

	flags.String("ledger", string(ledger.BackendSQLite), "Ledger backend: sqlite, postgres, file, redis or memory")
	flags.String("ledger-dsn", "", "SQLite path, Postgres DSN or Redis URL (sqlite default: "+filepath.Join(home, "db.sqlite3")+")")
	flags.String("state-dir", filepath.Join(home, "state"), "Directory for the file ledger")

	flags.String("scratch-dir", "", "Directory for temporary downloads (default: OS temp dir)")
	flags.Duration("http-timeout", 60*time.Second, "Timeout for document downloads and feed requests")
	flags.Bool("dry-run", false, "Resolve and download without creating folders, uploading or recording")

	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("log-dir", "", "Also write logs to a rotated file in this directory")

	flags.StringArray("include-recipient", nil, "Regex allow-list applied to recipient names (mutually exclusive with exclude)")
	flags.StringArray("exclude-recipient", nil, "Regex block-list applied to recipient names (mutually exclusive with include)")

	flags.String("metrics-pushgateway", "", "Prometheus pushgateway URL to push run metrics to")
	flags.String("metrics-job", "mailscan_to_drive", "Pushgateway job name")

	return nil
}

// LoadConfig resolves every option from flags, environment, dotenv file,
// config file and defaults, in that order of precedence.
func LoadConfig(cmd *cobra.Command, opts LoadOptions) (Config, error) {
	flags := cmd.Flags()

	envFile, err := flags.GetString("env-file")
	if err != nil {
		return Config{}, err
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api-key", EnvPrefix+"_API_KEY", LegacyAPIKeyEnv); err != nil {
		return Config{}, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	include, err := stringArray(flags, v, "include-recipient")
	if err != nil {
		return Config{}, err
	}
	exclude, err := stringArray(flags, v, "exclude-recipient")
	if err != nil {
		return Config{}, err
	}

	logLevel := strings.ToLower(v.GetString("log-level"))
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		APIKey:      strings.TrimSpace(v.GetString("api-key")),
		FeedURL:     v.GetString("feed-url"),
		Status:      v.GetString("status"),
		PageSize:    v.GetInt("page-size"),
		FeedRate:    v.GetFloat64("feed-rate"),
		FeedRetries: v.GetInt("feed-retries"),

		Destination:      strings.ToLower(v.GetString("destination")),
		DriveCredentials: v.GetString("drive-credentials"),
		LocalRoot:        v.GetString("local-root"),
		RootFolderID:     v.GetString("root-folder-id"),
		DefaultFolder:    v.GetString("default-folder"),
		MatchPolicy:      strings.ToLower(v.GetString("match-policy")),
		MatchThreshold:   v.GetInt("match-threshold"),
		Recursive:        v.GetBool("recursive"),
		ReuseListing:     v.GetBool("reuse-listing"),

		Ledger:    strings.ToLower(v.GetString("ledger")),
		LedgerDSN: v.GetString("ledger-dsn"),
		StateDir:  v.GetString("state-dir"),

		ScratchDir:  v.GetString("scratch-dir"),
		HTTPTimeout: v.GetDuration("http-timeout"),
		DryRun:      v.GetBool("dry-run"),

		LogLevel:  logLevel,
		LogFormat: strings.ToLower(v.GetString("log-format")),
		LogDir:    v.GetString("log-dir"),

		IncludeRecipient: include,
		ExcludeRecipient: exclude,

		MetricsPushgateway: v.GetString("metrics-pushgateway"),
		MetricsJob:         v.GetString("metrics-job"),
	}

	if cfg.APIKey == "" && opts.Secrets != nil && opts.SecretKey != "" {
		// A missing or unavailable keyring is reported by validation below.
		if secret, err := opts.Secrets.Get(opts.SecretKey); err == nil {
			cfg.APIKey = strings.TrimSpace(secret)
		}
	}

	if cfg.StateDir == "" {
		home, err := dataDir()
		if err != nil {
			return Config{}, err
		}
		cfg.StateDir = filepath.Join(home, "state")
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)

	if cfg.LedgerDSN == "" && cfg.Ledger == string(ledger.BackendSQLite) {
		home, err := dataDir()
		if err != nil {
			return Config{}, err
		}
		cfg.LedgerDSN = filepath.Join(home, "db.sqlite3")
	}

	if err := validateConfig(cfg, opts); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config, opts LoadOptions) error {
	if opts.RequireAPIKey && cfg.APIKey == "" {
		return fmt.Errorf("API key must be provided via --api-key, MAILSCAN_API_KEY, %s or the OS keyring", LegacyAPIKeyEnv)
	}
	if cfg.PageSize <= 0 {
		return fmt.Errorf("--page-size must be positive")
	}
	if cfg.FeedRate < 0 {
		return fmt.Errorf("--feed-rate must not be negative")
	}
	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 100 {
		return fmt.Errorf("--match-threshold must be between 0 and 100")
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("--http-timeout must be positive")
	}
	if len(cfg.IncludeRecipient) > 0 && len(cfg.ExcludeRecipient) > 0 {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.Destination {
	case DestinationDrive:
		if cfg.DriveCredentials == "" {
			return fmt.Errorf("--drive-credentials is required for the gdrive destination")
		}
	case DestinationLocal:
		if cfg.LocalRoot == "" {
			return fmt.Errorf("--local-root is required for the local destination")
		}
	default:
		return fmt.Errorf("invalid --destination: %s", cfg.Destination)
	}

	if !slices.Contains(resolve.Policies(), cfg.MatchPolicy) {
		return fmt.Errorf("invalid --match-policy: %s", cfg.MatchPolicy)
	}
	if !slices.Contains(ledger.Backends(), ledger.Backend(cfg.Ledger)) {
		return fmt.Errorf("invalid --ledger: %s", cfg.Ledger)
	}
	switch ledger.Backend(cfg.Ledger) {
	case ledger.BackendPostgres, ledger.BackendRedis:
		if cfg.LedgerDSN == "" {
			return fmt.Errorf("--ledger-dsn is required for the %s ledger", cfg.Ledger)
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid --log-format: %s", cfg.LogFormat)
	}

	return nil
}

// stringArray prefers an explicit flag so regexes containing commas survive.
// An environment value holds one pattern per line; a config file may use a list.
func stringArray(flags *pflag.FlagSet, v *viper.Viper, name string) ([]string, error) {
	if flags.Changed(name) {
		return flags.GetStringArray(name)
	}
	if !v.IsSet(name) {
		return nil, nil
	}

	var values []string
	switch raw := v.Get(name).(type) {
	case string:
		values = strings.Split(raw, "\n")
	case []string:
		values = raw
	case []any:
		for _, item := range raw {
			values = append(values, fmt.Sprint(item))
		}
	default:
		return nil, fmt.Errorf("invalid value for %s: %v", name, raw)
	}

	var out []string
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out, nil
}

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mailscan-to-drive"), nil
}
