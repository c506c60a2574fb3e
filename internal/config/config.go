// Package config loads harness configuration.
//
// Precedence, lowest first: built-in defaults, an optional TOML file,
// HARNESS_* environment variables, then CLI flags (passed to LoadWith as
// overrides). S3 settings also honor the standard AWS_* variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kuitang/admin-e2e/internal/otp"
	"github.com/kuitang/admin-e2e/internal/urlutil"
)

// DefaultFile is read when Load is given no path and the file exists.
const DefaultFile = "harness.toml"

// Duration is a time.Duration that decodes from strings like "3s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds all harness configuration.
type Config struct {
	App      AppConfig      `toml:"app"`
	Mail     MailConfig     `toml:"mail"`
	Accounts AccountsConfig `toml:"accounts"`
	Browser  BrowserConfig  `toml:"browser"`
	Timing   TimingConfig   `toml:"timing"`
	Filters  FiltersConfig  `toml:"filters"`
	Run      RunConfig      `toml:"run"`
	S3       S3Config       `toml:"s3"`
	FakeApp  FakeAppConfig  `toml:"fakeapp"`
	LogLevel string         `toml:"log_level"`

	// Source is the TOML file that was applied, if any.
	Source string `toml:"-"`
}

// AppConfig locates the application under test.
type AppConfig struct {
	BaseURL   string `toml:"base_url"`
	LoginPath string `toml:"login_path"`
	// ProfileMenu is a regular expression matching the account menu button.
	ProfileMenu string `toml:"profile_menu"`
}

// MailConfig selects where verification codes are read from.
type MailConfig struct {
	Source       string     `toml:"source"` // web or imap
	BaseURL      string     `toml:"base_url"`
	PollTries    int        `toml:"poll_tries"`
	PollInterval Duration   `toml:"poll_interval"`
	IMAP         IMAPConfig `toml:"imap"`
}

// IMAPConfig is used when Mail.Source is imap.
type IMAPConfig struct {
	Addr     string `toml:"addr"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	TLS      bool   `toml:"tls"`
	Folder   string `toml:"folder"`
}

// AccountsConfig holds the identities the scenarios sign in with.
type AccountsConfig struct {
	Admin     string `toml:"admin"`
	Unknown   string `toml:"unknown"`
	WrongCode string `toml:"wrong_code"`
}

// BrowserConfig tunes Chromium.
type BrowserConfig struct {
	Headless      bool     `toml:"headless"`
	SlowMo        Duration `toml:"slow_mo"`
	ActionTimeout Duration `toml:"action_timeout"`
	Install       bool     `toml:"install"`
}

// TimingConfig holds scenario bounds and settle delays.
type TimingConfig struct {
	ScenarioTimeout Duration `toml:"scenario_timeout"`
	ResendSettle    Duration `toml:"resend_settle"`
	ScrollSettle    Duration `toml:"scroll_settle"`
	FilterSettle    Duration `toml:"filter_settle"`
	MaxScrollCycles int      `toml:"max_scroll_cycles"`
}

// FiltersConfig holds the inputs of the App Users scenarios.
type FiltersConfig struct {
	SearchKeyword string `toml:"search_keyword"`
	DateFrom      string `toml:"date_from"`
	DateTo        string `toml:"date_to"`
}

// RunConfig controls scheduling and artifacts.
type RunConfig struct {
	Parallel     int      `toml:"parallel"`
	Scenarios    []string `toml:"scenarios"`
	Screenshots  bool     `toml:"screenshots"`
	ArtifactsDir string   `toml:"artifacts_dir"`
}

// S3Config enables the S3 artifact store when Bucket is set.
type S3Config struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	PathStyle       bool   `toml:"path_style"`
}

// FakeAppConfig configures `harness serve-fake`.
type FakeAppConfig struct {
	ListenAddr   string   `toml:"listen_addr"`
	MailLatency  Duration `toml:"mail_latency"`
	SendRate     float64  `toml:"send_rate"`
	SendBurst    int      `toml:"send_burst"`
	Users        int      `toml:"users"`
	ResendAPIKey string   `toml:"resend_api_key"`
	ResendFrom   string   `toml:"resend_from"`
}

// Default returns the configuration used against staging.
func Default() Config {
	return Config{
		App: AppConfig{
			BaseURL:     "https://stage.rainydayparents.com",
			LoginPath:   "/login",
			ProfileMenu: "(?i)Rainyday Parents",
		},
		Mail: MailConfig{
			Source:       "web",
			BaseURL:      "https://yopmail.com",
			PollTries:    12,
			PollInterval: Duration{3 * time.Second},
			IMAP:         IMAPConfig{TLS: true, Folder: "INBOX"},
		},
		Accounts: AccountsConfig{
			Admin:     "admin.devrainyday@yopmail.com",
			Unknown:   "admin.stage@yopmail.com",
			WrongCode: "609271",
		},
		Browser: BrowserConfig{
			Headless:      true,
			ActionTimeout: Duration{60 * time.Second},
		},
		Timing: TimingConfig{
			ScenarioTimeout: Duration{120 * time.Second},
			ResendSettle:    Duration{3 * time.Second},
			ScrollSettle:    Duration{2 * time.Second},
			FilterSettle:    Duration{5 * time.Second},
			MaxScrollCycles: 200,
		},
		Filters: FiltersConfig{
			SearchKeyword: "fin",
			DateFrom:      "2025-08-28",
			DateTo:        "2025-08-30",
		},
		Run: RunConfig{
			Parallel:     1,
			Screenshots:  true,
			ArtifactsDir: "artifacts",
		},
		S3: S3Config{
			Region: "auto",
			Prefix: "runs",
		},
		FakeApp: FakeAppConfig{
			ListenAddr:  "127.0.0.1:8089",
			MailLatency: Duration{2 * time.Second},
			SendRate:    1,
			SendBurst:   3,
			Users:       57,
			ResendFrom:  "noreply@example.com",
		},
		LogLevel: "info",
	}
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load applies defaults, the TOML file at path, and the environment, then validates.
// An empty path reads DefaultFile when it exists.
func Load(path string) (*Config, error) {
	return LoadWith(path)
}

// LoadWith is Load with overrides applied after the environment, so command
// line flags take precedence over everything else.
func LoadWith(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("config file: %w", err)
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return &ValidationError{Errors: []string{"unknown keys in " + path + ": " + strings.Join(keys, ", ")}}
	}
	c.Source = path
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s must be a boolean, got %q", key, v))
		return
	}
	*dst = parsed
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s must be an integer, got %q", key, v))
		return
	}
	*dst = parsed
}

func (r *envReader) duration(key string, dst *Duration) {
	v, ok := r.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	if err := dst.UnmarshalText([]byte(v)); err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s must be a duration like 3s, got %q", key, v))
	}
}

func (r *envReader) list(key string, dst *[]string) {
	v, ok := r.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	r := &envReader{lookup: lookup}

	r.str("HARNESS_APP_BASE_URL", &c.App.BaseURL)
	r.str("HARNESS_LOGIN_PATH", &c.App.LoginPath)
	r.str("HARNESS_PROFILE_MENU", &c.App.ProfileMenu)

	r.str("HARNESS_MAIL_SOURCE", &c.Mail.Source)
	r.str("HARNESS_MAILBOX_BASE_URL", &c.Mail.BaseURL)
	r.integer("HARNESS_POLL_TRIES", &c.Mail.PollTries)
	r.duration("HARNESS_POLL_INTERVAL", &c.Mail.PollInterval)
	r.str("HARNESS_IMAP_ADDR", &c.Mail.IMAP.Addr)
	r.str("HARNESS_IMAP_USERNAME", &c.Mail.IMAP.Username)
	r.str("HARNESS_IMAP_PASSWORD", &c.Mail.IMAP.Password)
	r.boolean("HARNESS_IMAP_TLS", &c.Mail.IMAP.TLS)
	r.str("HARNESS_IMAP_FOLDER", &c.Mail.IMAP.Folder)

	r.str("HARNESS_ADMIN_IDENTITY", &c.Accounts.Admin)
	r.str("HARNESS_UNKNOWN_IDENTITY", &c.Accounts.Unknown)
	r.str("HARNESS_WRONG_CODE", &c.Accounts.WrongCode)

	r.boolean("HARNESS_HEADLESS", &c.Browser.Headless)
	r.duration("HARNESS_SLOW_MO", &c.Browser.SlowMo)
	r.duration("HARNESS_ACTION_TIMEOUT", &c.Browser.ActionTimeout)
	r.boolean("HARNESS_INSTALL_BROWSER", &c.Browser.Install)

	r.duration("HARNESS_SCENARIO_TIMEOUT", &c.Timing.ScenarioTimeout)
	r.duration("HARNESS_RESEND_SETTLE", &c.Timing.ResendSettle)
	r.duration("HARNESS_SCROLL_SETTLE", &c.Timing.ScrollSettle)
	r.duration("HARNESS_FILTER_SETTLE", &c.Timing.FilterSettle)
	r.integer("HARNESS_MAX_SCROLL_CYCLES", &c.Timing.MaxScrollCycles)

	r.str("HARNESS_SEARCH_KEYWORD", &c.Filters.SearchKeyword)
	r.str("HARNESS_DATE_FROM", &c.Filters.DateFrom)
	r.str("HARNESS_DATE_TO", &c.Filters.DateTo)

	r.integer("HARNESS_PARALLEL", &c.Run.Parallel)
	r.list("HARNESS_SCENARIOS", &c.Run.Scenarios)
	r.boolean("HARNESS_SCREENSHOTS", &c.Run.Screenshots)
	r.str("HARNESS_ARTIFACTS_DIR", &c.Run.ArtifactsDir)
	r.str("HARNESS_LOG_LEVEL", &c.LogLevel)

	// S3 (AWS_ env vars, as set by `fly storage create`)
	r.str("AWS_ENDPOINT_URL_S3", &c.S3.Endpoint)
	r.str("AWS_REGION", &c.S3.Region)
	r.str("BUCKET_NAME", &c.S3.Bucket)
	r.str("AWS_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	r.str("AWS_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	r.str("HARNESS_S3_PREFIX", &c.S3.Prefix)
	r.boolean("HARNESS_S3_PATH_STYLE", &c.S3.PathStyle)

	r.str("HARNESS_FAKEAPP_ADDR", &c.FakeApp.ListenAddr)
	r.duration("HARNESS_FAKEAPP_MAIL_LATENCY", &c.FakeApp.MailLatency)
	r.str("RESEND_API_KEY", &c.FakeApp.ResendAPIKey)
	r.str("RESEND_FROM_EMAIL", &c.FakeApp.ResendFrom)

	if len(r.errs) > 0 {
		return &ValidationError{Errors: r.errs}
	}
	return nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	for _, f := range []struct{ name, raw string }{
		{"app.base_url", c.App.BaseURL},
		{"mail.base_url", c.Mail.BaseURL},
	} {
		if u, err := url.Parse(f.raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s must be an absolute http(s) URL, got %q", f.name, f.raw))
		}
	}
	if !strings.HasPrefix(c.App.LoginPath, "/") {
		errs = append(errs, "app.login_path must start with /")
	}
	if _, err := regexp.Compile(c.App.ProfileMenu); err != nil {
		errs = append(errs, fmt.Sprintf("app.profile_menu is not a valid pattern: %v", err))
	}

	switch c.Mail.Source {
	case "web":
	case "imap":
		if c.Mail.IMAP.Addr == "" {
			errs = append(errs, "mail.imap.addr is required when mail.source is imap")
		}
		if c.Mail.IMAP.Username == "" {
			errs = append(errs, "mail.imap.username is required when mail.source is imap")
		}
	default:
		errs = append(errs, fmt.Sprintf("mail.source must be web or imap, got %q", c.Mail.Source))
	}
	if c.Mail.PollTries < 1 {
		errs = append(errs, "mail.poll_tries must be at least 1")
	}
	if c.Mail.PollInterval.Duration < 0 {
		errs = append(errs, "mail.poll_interval cannot be negative")
	}

	for _, f := range []struct{ name, identity string }{
		{"accounts.admin", c.Accounts.Admin},
		{"accounts.unknown", c.Accounts.Unknown},
	} {
		if local, _, ok := strings.Cut(f.identity, "@"); !ok || local == "" {
			errs = append(errs, fmt.Sprintf("%s must be an email address, got %q", f.name, f.identity))
		}
	}
	if _, err := otp.Parse(c.Accounts.WrongCode); err != nil {
		errs = append(errs, "accounts.wrong_code must be 6 digits")
	}

	if c.Browser.ActionTimeout.Duration <= 0 {
		errs = append(errs, "browser.action_timeout must be positive")
	}
	if c.Browser.SlowMo.Duration < 0 {
		errs = append(errs, "browser.slow_mo cannot be negative")
	}
	if c.Timing.ScenarioTimeout.Duration <= 0 {
		errs = append(errs, "timing.scenario_timeout must be positive")
	}
	for _, f := range []struct {
		name string
		d    Duration
	}{
		{"timing.resend_settle", c.Timing.ResendSettle},
		{"timing.scroll_settle", c.Timing.ScrollSettle},
		{"timing.filter_settle", c.Timing.FilterSettle},
	} {
		if f.d.Duration < 0 {
			errs = append(errs, f.name+" cannot be negative")
		}
	}
	if c.Timing.MaxScrollCycles < 0 {
		errs = append(errs, "timing.max_scroll_cycles cannot be negative")
	}

	from, fromErr := time.Parse(time.DateOnly, c.Filters.DateFrom)
	if fromErr != nil {
		errs = append(errs, fmt.Sprintf("filters.date_from must be yyyy-mm-dd, got %q", c.Filters.DateFrom))
	}
	to, toErr := time.Parse(time.DateOnly, c.Filters.DateTo)
	if toErr != nil {
		errs = append(errs, fmt.Sprintf("filters.date_to must be yyyy-mm-dd, got %q", c.Filters.DateTo))
	}
	if fromErr == nil && toErr == nil && to.Before(from) {
		errs = append(errs, "filters.date_to is before filters.date_from")
	}

	if c.Run.Parallel < 1 {
		errs = append(errs, "run.parallel must be at least 1")
	}
	if c.Run.ArtifactsDir == "" && c.S3.Bucket == "" {
		errs = append(errs, "run.artifacts_dir or s3.bucket is required")
	}
	if c.S3.Bucket != "" && (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// LoginURL is the absolute sign-in page URL.
func (c *Config) LoginURL() string {
	return urlutil.BuildAbsolute(c.App.BaseURL, c.App.LoginPath)
}

// DateRange returns the configured joined-date bounds.
func (c *Config) DateRange() (from, to time.Time, err error) {
	from, err = time.Parse(time.DateOnly, c.Filters.DateFrom)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err = time.Parse(time.DateOnly, c.Filters.DateTo)
	return from, to, err
}

// UseS3 reports whether artifacts go to S3 instead of the local directory.
func (c *Config) UseS3() bool {
	return c.S3.Bucket != ""
}

// PrintSummary writes a human-readable summary of the configuration to stderr.
func (c *Config) PrintSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "admin e2e harness")
	fmt.Fprintf(os.Stderr, "  App:       %s\n", c.LoginURL())
	if c.Mail.Source == "imap" {
		fmt.Fprintf(os.Stderr, "  Mail:      IMAP %s\n", c.Mail.IMAP.Addr)
	} else {
		fmt.Fprintf(os.Stderr, "  Mail:      web inbox %s\n", c.Mail.BaseURL)
	}
	if c.UseS3() {
		fmt.Fprintf(os.Stderr, "  Artifacts: s3://%s/%s\n", c.S3.Bucket, c.S3.Prefix)
	} else {
		fmt.Fprintf(os.Stderr, "  Artifacts: %s\n", c.Run.ArtifactsDir)
	}
	fmt.Fprintf(os.Stderr, "  Parallel:  %d\n", c.Run.Parallel)
	if c.Source != "" {
		fmt.Fprintf(os.Stderr, "  Config:    %s\n", c.Source)
	}
	fmt.Fprintln(os.Stderr, "")
}
