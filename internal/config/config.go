package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the docs directory.
const FileName = "colorplay.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COLORPLAY_"

// Config represents the colorplay.yaml configuration file
type Config struct {
	Title       string           `yaml:"title" default:"Color Playground"`
	Description string           `yaml:"description" default:"Interactive notebooks for the color library"`
	Server      ServerConfig     `yaml:"server"`
	Docs        DocsConfig       `yaml:"docs"`
	Playground  PlaygroundConfig `yaml:"playground"`
	Runtime     RuntimeConfig    `yaml:"runtime"`
	Styling     StylingConfig    `yaml:"styling"`
	Log         LogConfig        `yaml:"log"`
	Navigation  []NavSection     `yaml:"navigation,omitempty" validate:"dive"`
	Ignore      []string         `yaml:"ignore,omitempty" default:"[\"drafts/**\",\"_*.md\"]"`
}

// NavSection represents a navigation section with pages
type NavSection struct {
	Title     string    `yaml:"title" validate:"required"`
	Path      string    `yaml:"path"`
	Collapsed bool      `yaml:"collapsed"`
	Pages     []NavPage `yaml:"pages,omitempty" validate:"dive"`
}

// NavPage represents a single page in navigation
type NavPage struct {
	Title string `yaml:"title"`
	Path  string `yaml:"path" validate:"required"` // e.g. "gradients/interpolation.md"
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port      int             `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	Host      string          `yaml:"host" default:"localhost" validate:"required"`
	Debug     bool            `yaml:"debug"`
	HotReload bool            `yaml:"hot_reload" default:"true"`
	CORS      []string        `yaml:"cors_origins,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds the messages a single page session may send and
// the HTTP requests a single client IP may make.
type RateLimitConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second" default:"20" validate:"gt=0"`
	Burst             int     `yaml:"burst" default:"40" validate:"min=1"`
	RequestsPerSecond float64 `yaml:"requests_per_second" default:"50" validate:"gt=0"`
	RequestBurst      int     `yaml:"request_burst" default:"100" validate:"min=1"`
	MaxTrackedIPs     int     `yaml:"max_tracked_ips" default:"10000" validate:"min=1"`
}

// DocsConfig locates the documentation site.
type DocsConfig struct {
	// Base is the site prefix ("coloraide" serves pages under /coloraide/).
	Base      string `yaml:"base"`
	Home      string `yaml:"home" default:"index.md"`
	OutputDir string `yaml:"output_dir" default:"site"`
}

// PlaygroundConfig configures the playground route and share links.
type PlaygroundConfig struct {
	Route             string        `yaml:"route" default:"playground" validate:"required,excludesall=/?#"`
	ShareMaxLength    int           `yaml:"share_max_length" default:"2000" validate:"min=1"`
	IntroURL          string        `yaml:"intro_url" default:"https://gist.githubusercontent.com/facelessuser/7c819668b5eb248ecb9ac608d91391cf/raw/playground.md" validate:"omitempty,url"`
	SessionTTL        time.Duration `yaml:"session_ttl" default:"30m"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout" default:"15s"`
	FetchMaxSize      int64         `yaml:"fetch_max_size" default:"1048576" validate:"min=1"`
	AllowPrivateFetch bool          `yaml:"allow_private_fetch"`
}

// RuntimeConfig selects and configures the interpreter backend.
type RuntimeConfig struct {
	Backend    string `yaml:"backend" default:"wasm" validate:"oneof=wasm exec"`
	RuntimeURL string `yaml:"runtime_url" default:"https://github.com/vmware-labs/webassembly-language-runtimes/releases/download/python%2F3.12.0%2B20231211-040d5a6/python-3.12.0.wasm" validate:"required_if=Backend wasm"`
	// IndexURL is the base for relative wheel file names in the package sets.
	IndexURL string `yaml:"index_url" validate:"omitempty,url"`
	// PackageIndex is a PyPI-style JSON API. The wasm backend resolves bare
	// project names in the package sets to their pure-Python wheels there.
	PackageIndex string         `yaml:"package_index" default:"https://pypi.org/pypi" validate:"required_if=Backend wasm"`
	CacheDir     string         `yaml:"cache_dir" default:".colorplay/cache"`
	Timeout      time.Duration  `yaml:"timeout" default:"30s"`
	Packages     PackagesConfig `yaml:"packages"`
	Exec         ExecConfig     `yaml:"exec"`
}

// PackagesConfig lists what each runtime mode installs. Entries are project
// names (optionally pinned with ==), wheel file names relative to index_url,
// or absolute wheel URLs and paths.
type PackagesConfig struct {
	Light []string `yaml:"light" default:"[\"micropip\",\"pygments\"]"`
	Full  []string `yaml:"full" default:"[\"markdown\",\"pymdown-extensions\",\"coloraide\"]"`
}

// ExecConfig configures the exec backend.
type ExecConfig struct {
	Command   string `yaml:"command" default:"python3"`
	Installer string `yaml:"installer" default:"python3 -m pip install --quiet --disable-pip-version-check"`
}

// StylingConfig holds styling-related configuration
type StylingConfig struct {
	CodeStyle    string `yaml:"code_style" default:"github"`
	PrimaryColor string `yaml:"primary_color" default:"#5e35b1" validate:"omitempty,hexcolor"`
	Font         string `yaml:"font" default:"system-ui"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"pretty" validate:"oneof=pretty json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads a YAML config file on top of the defaults. A missing file
// yields the defaults. Environment overrides are applied last.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads .env (if present) and colorplay.yaml from dir.
// Variables already set in the process environment win over .env.
func LoadFromDir(dir string) (*Config, error) {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}
	return Load(filepath.Join(dir, FileName))
}

// ApplyEnv overrides fields from COLORPLAY_* variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("HOST", &c.Server.Host)
	str("DOCS_BASE", &c.Docs.Base)
	str("RUNTIME_BACKEND", &c.Runtime.Backend)
	str("RUNTIME_URL", &c.Runtime.RuntimeURL)
	str("INDEX_URL", &c.Runtime.IndexURL)
	str("PACKAGE_INDEX", &c.Runtime.PackageIndex)
	str("CACHE_DIR", &c.Runtime.CacheDir)
	str("EXEC_COMMAND", &c.Runtime.Exec.Command)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvPrefix + "SHARE_MAX_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSHARE_MAX_LENGTH: %w", EnvPrefix, err)
		}
		c.Playground.ShareMaxLength = n
	}
	if v, ok := lookup(EnvPrefix + "RUNTIME_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sRUNTIME_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Runtime.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		c.Server.CORS = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and reports them by YAML key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return c.Runtime.validatePackages()
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := key + ": failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// validatePackages rejects relative wheel names that have no index_url to
// resolve against.
func (c *RuntimeConfig) validatePackages() error {
	if c.IndexURL != "" {
		return nil
	}
	for mode, pkgs := range c.PackageSets() {
		for _, p := range pkgs {
			if strings.HasSuffix(strings.ToLower(p), ".whl") && !strings.Contains(p, "://") && !filepath.IsAbs(p) {
				return fmt.Errorf("invalid config: runtime.index_url: required for relative wheel %q in packages.%s", p, mode)
			}
		}
	}
	return nil
}

// PackageSets returns the package set of each runtime mode.
func (c *RuntimeConfig) PackageSets() map[string][]string {
	return map[string][]string{
		"light": c.Packages.Light,
		"full":  c.Packages.Full,
	}
}

// Save writes the configuration as YAML.
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
