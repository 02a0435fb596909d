package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/brogergvhs/mangarack/internal/fsx"
)

// EnvPrefix prefixes every environment override, e.g. MANGARACK_OUTPUT or
// MANGARACK_BROWSER_HEADLESS.
const EnvPrefix = "MANGARACK_"

type Browser struct {
	Bin             string        `yaml:"bin" env:"BIN"`
	ControlURL      string        `yaml:"control_url" env:"CONTROL_URL"`
	Headless        bool          `yaml:"headless" env:"HEADLESS"`
	UserAgent       string        `yaml:"user_agent" env:"USER_AGENT"`
	ViewportWidth   int           `yaml:"viewport_width" env:"VIEWPORT_WIDTH"`
	ViewportHeight  int           `yaml:"viewport_height" env:"VIEWPORT_HEIGHT"`
	NavigateRetries int           `yaml:"navigate_retries" env:"NAVIGATE_RETRIES"`
	WaitTimeout     time.Duration `yaml:"wait_timeout" env:"WAIT_TIMEOUT"`
}

type Server struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	OpenChapters int    `yaml:"open_chapters" env:"OPEN_CHAPTERS"`
}

type Config struct {
	Output    string   `yaml:"output" env:"OUTPUT"`
	Debug     bool     `yaml:"debug" env:"DEBUG"`
	Providers []string `yaml:"providers" env:"PROVIDERS"`

	Browser         Browser       `yaml:"browser" envPrefix:"BROWSER_"`
	RequestInterval time.Duration `yaml:"request_interval" env:"REQUEST_INTERVAL"`
	AllowExt        []string      `yaml:"allow_ext" env:"ALLOW_EXT"`
	ProbeScripts    bool          `yaml:"probe_scripts" env:"PROBE_SCRIPTS"`

	Server          Server            `yaml:"server" envPrefix:"SERVER_"`
	ImageProcessors map[string]string `yaml:"image_processors" env:"IMAGE_PROCESSORS"`

	CloudflareBypass bool   `yaml:"cloudflare_bypass" env:"CLOUDFLARE_BYPASS"`
	Cookie           string `yaml:"cookie" env:"COOKIE"`
	CookieFile       string `yaml:"cookie_file" env:"COOKIE_FILE"`
}

// Options carries command line flags. Zero values leave the config alone.
type Options struct {
	IgnoreConfig bool
	Debug        bool
	Output       string
	Headless     *bool
	BrowserBin   string
	ControlURL   string
	Addr         string
}

func DefaultConfig() *Config {
	return &Config{
		Output: ".",
		Browser: Browser{
			Headless:        true,
			ViewportWidth:   1280,
			ViewportHeight:  900,
			NavigateRetries: 5,
			WaitTimeout:     60 * time.Second,
		},
		RequestInterval: 500 * time.Millisecond,
		AllowExt:        []string{"jpg", "jpeg", "png", "webp", "gif"},
		Server: Server{
			Addr:         "127.0.0.1:7783",
			OpenChapters: 4,
		},
		ImageProcessors: map[string]string{},
	}
}

func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, data)
}

// loadYAML reads path over the defaults, so keys missing from the file keep
// their default values.
func loadYAML(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := DefaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadMerged resolves the effective config: active profile (or defaults),
// then MANGARACK_* environment variables, then flags. The second return
// describes where the base config came from.
func LoadMerged(store Store, opts Options) (*Config, string, error) {
	cfg, source, err := loadBase(store, opts)
	if err != nil {
		return nil, "", err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, "", fmt.Errorf("environment: %w", err)
	}

	mergeFlags(cfg, opts)
	normalize(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, source, nil
}

func loadBase(store Store, opts Options) (*Config, string, error) {
	if opts.IgnoreConfig {
		return DefaultConfig(), "(ignored config)", nil
	}

	path, err := store.ActivePath()
	if errors.Is(err, ErrNoConfig) {
		return DefaultConfig(), "(default config in memory, run `mangarack config init` to create one)", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := loadYAML(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, path, nil
}

func mergeFlags(c *Config, o Options) {
	if o.Debug {
		c.Debug = true
	}
	if o.Output != "" {
		c.Output = o.Output
	}
	if o.Headless != nil {
		c.Browser.Headless = *o.Headless
	}
	if o.BrowserBin != "" {
		c.Browser.Bin = o.BrowserBin
	}
	if o.ControlURL != "" {
		c.Browser.ControlURL = o.ControlURL
	}
	if o.Addr != "" {
		c.Server.Addr = o.Addr
	}
}

func normalize(c *Config) {
	def := DefaultConfig()
	if c.Output == "" {
		c.Output = def.Output
	}
	if c.Browser.ViewportWidth == 0 {
		c.Browser.ViewportWidth = def.Browser.ViewportWidth
	}
	if c.Browser.ViewportHeight == 0 {
		c.Browser.ViewportHeight = def.Browser.ViewportHeight
	}
	if c.Browser.NavigateRetries == 0 {
		c.Browser.NavigateRetries = def.Browser.NavigateRetries
	}
	if c.Browser.WaitTimeout == 0 {
		c.Browser.WaitTimeout = def.Browser.WaitTimeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.OpenChapters == 0 {
		c.Server.OpenChapters = def.Server.OpenChapters
	}
	if c.ImageProcessors == nil {
		c.ImageProcessors = map[string]string{}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Browser.NavigateRetries < 1 {
		errs = append(errs, errors.New("browser.navigate_retries must be at least 1"))
	}
	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		errs = append(errs, errors.New("browser viewport must not be negative"))
	}
	if c.Browser.WaitTimeout < 0 {
		errs = append(errs, errors.New("browser.wait_timeout must not be negative"))
	}
	if c.RequestInterval < 0 {
		errs = append(errs, errors.New("request_interval must not be negative"))
	}
	if c.Server.OpenChapters < 0 {
		errs = append(errs, errors.New("server.open_chapters must not be negative"))
	}
	return errors.Join(errs...)
}

// Rows lists the settings as key/value pairs for display.
func (c *Config) Rows() [][]string {
	rows := [][]string{
		{"output", c.Output},
		{"debug", strconv.FormatBool(c.Debug)},
		{"providers", listOrAll(c.Providers)},
		{"browser.bin", orDash(c.Browser.Bin)},
		{"browser.control_url", orDash(c.Browser.ControlURL)},
		{"browser.headless", strconv.FormatBool(c.Browser.Headless)},
		{"browser.user_agent", orDash(c.Browser.UserAgent)},
		{"browser.viewport", fmt.Sprintf("%dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)},
		{"browser.navigate_retries", strconv.Itoa(c.Browser.NavigateRetries)},
		{"browser.wait_timeout", c.Browser.WaitTimeout.String()},
		{"request_interval", c.RequestInterval.String()},
		{"allow_ext", strings.Join(c.AllowExt, ", ")},
		{"probe_scripts", strconv.FormatBool(c.ProbeScripts)},
		{"server.addr", c.Server.Addr},
		{"server.open_chapters", strconv.Itoa(c.Server.OpenChapters)},
		{"cloudflare_bypass", strconv.FormatBool(c.CloudflareBypass)},
	}
	if c.CookieFile != "" {
		rows = append(rows, []string{"cookie_file", c.CookieFile})
	}

	providers := make([]string, 0, len(c.ImageProcessors))
	for p := range c.ImageProcessors {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		rows = append(rows, []string{"image_processors." + p, c.ImageProcessors[p]})
	}
	return rows
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func listOrAll(l []string) string {
	if len(l) == 0 {
		return "(all)"
	}
	return strings.Join(l, ", ")
}
