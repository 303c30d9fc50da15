// Package config handles the settings of crackomatic.
//
// Settings are read with viper from a YAML file (--config, ./crackomatic.yaml
// or config.yaml below the user config directory), overridden by
// CRACKOMATIC_* environment variables. "crackomatic config set" writes the
// file back with yaml.v3.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/engine"
	"github.com/crackomatic/crackomatic/internal/logging"
)

const (
	appDir    = "crackomatic"
	fileName  = "config.yaml"
	localFile = "crackomatic.yaml"
	envPrefix = "CRACKOMATIC"
)

// Replication methods.
const (
	MethodDRSR  = "drsr"
	MethodSamba = "samba"
)

// pathOverride, when non-empty, replaces the default config file path.
// The --config flag and tests use it.
var pathOverride string

// SetPath overrides the config file path.
func SetPath(p string) { pathOverride = p }

// ResetPath clears the path override, reverting to the default.
func ResetPath() { pathOverride = "" }

// Cracker configures the recovery engine.
type Cracker struct {
	Engine       string   `mapstructure:"engine" yaml:"engine"`
	BinaryPath   string   `mapstructure:"binary_path" yaml:"binary_path,omitempty"`
	WordlistPath string   `mapstructure:"wordlist_path" yaml:"wordlist_path"`
	RulePath     string   `mapstructure:"rule_path" yaml:"rule_path,omitempty"`
	ExtraArgs    []string `mapstructure:"extra_args" yaml:"extra_args,omitempty"`

	// Cores is the John fork count; 0 means all CPUs.
	Cores int `mapstructure:"cores" yaml:"cores,omitempty"`
}

// Email configures the SMTP relay.
type Email struct {
	Host   string `mapstructure:"host" yaml:"host"`
	Port   int    `mapstructure:"port" yaml:"port"`
	TLS    bool   `mapstructure:"tls" yaml:"tls"`
	CAFile string `mapstructure:"ca_file" yaml:"ca_file,omitempty"`
	User   string `mapstructure:"user" yaml:"user,omitempty"`

	// Password is usually kept in the OS keyring ("crackomatic auth
	// login") rather than in the file.
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Sender   string `mapstructure:"sender" yaml:"sender"`
}

// Replication selects how hashes are fetched from the domain controller.
type Replication struct {
	Method    string `mapstructure:"method" yaml:"method"`
	SambaTool string `mapstructure:"samba_tool" yaml:"samba_tool,omitempty"`
	Pdbedit   string `mapstructure:"pdbedit" yaml:"pdbedit,omitempty"`
}

// Scheduler configures the polling loop.
type Scheduler struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// Config holds every setting.
type Config struct {
	Cracker     Cracker     `mapstructure:"cracker" yaml:"cracker"`
	Email       Email       `mapstructure:"email" yaml:"email"`
	Replication Replication `mapstructure:"replication" yaml:"replication"`
	Scheduler   Scheduler   `mapstructure:"scheduler" yaml:"scheduler"`

	// ReportURL is the base URL linked from admin reports.
	ReportURL   string `mapstructure:"report_url" yaml:"report_url,omitempty"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat   string `mapstructure:"log_format" yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Cracker: Cracker{Engine: "hashcat"},
		Email:   Email{Port: 465, TLS: true},
		Replication: Replication{
			Method:    MethodDRSR,
			SambaTool: "samba-tool",
			Pdbedit:   "pdbedit",
		},
		Scheduler: Scheduler{PollInterval: time.Second},
		LogLevel:  "info",
		LogFormat: logging.FormatText,
	}
}

// Path returns the file "config set" writes to: the override if set,
// otherwise crackomatic/config.yaml below os.UserConfigDir.
func Path() (string, error) {
	if pathOverride != "" {
		return pathOverride, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: unable to determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, fileName), nil
}

// Load reads the settings. A missing file is not an error.
func Load() (*Config, error) {
	return loadFrom("", true)
}

// LoadFrom reads the settings from path, which need not exist.
func LoadFrom(path string) (*Config, error) {
	return loadFrom(path, true)
}

// LoadFile reads path without environment overrides, so that saving the
// result does not persist them.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path, false)
}

func loadFrom(path string, env bool) (*Config, error) {
	if path == "" {
		var err error
		if path, err = resolvePath(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigType("yaml")
	if env {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// resolvePath prefers ./crackomatic.yaml over the per-user file.
func resolvePath() (string, error) {
	if pathOverride != "" {
		return pathOverride, nil
	}
	if _, err := os.Stat(localFile); err == nil {
		return localFile, nil
	}
	return Path()
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("cracker.engine", d.Cracker.Engine)
	v.SetDefault("cracker.binary_path", d.Cracker.BinaryPath)
	v.SetDefault("cracker.wordlist_path", d.Cracker.WordlistPath)
	v.SetDefault("cracker.rule_path", d.Cracker.RulePath)
	v.SetDefault("cracker.extra_args", d.Cracker.ExtraArgs)
	v.SetDefault("cracker.cores", d.Cracker.Cores)
	v.SetDefault("email.host", d.Email.Host)
	v.SetDefault("email.port", d.Email.Port)
	v.SetDefault("email.tls", d.Email.TLS)
	v.SetDefault("email.ca_file", d.Email.CAFile)
	v.SetDefault("email.user", d.Email.User)
	v.SetDefault("email.password", d.Email.Password)
	v.SetDefault("email.sender", d.Email.Sender)
	v.SetDefault("replication.method", d.Replication.Method)
	v.SetDefault("replication.samba_tool", d.Replication.SambaTool)
	v.SetDefault("replication.pdbedit", d.Replication.Pdbedit)
	v.SetDefault("scheduler.poll_interval", d.Scheduler.PollInterval)
	v.SetDefault("report_url", d.ReportURL)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// Save writes the config to Path, creating the parent directory if
// needed.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}

// Validate checks every section. The result joins one
// *domain.ConfigurationError per faulty section.
func (c *Config) Validate() error {
	return errors.Join(
		c.Cracker.Validate(),
		c.Email.Validate(),
		c.Replication.Validate(),
		c.validateGeneral(),
	)
}

// Validate checks the cracker section.
func (c Cracker) Validate() error {
	problems := &domain.ConfigurationError{Section: "cracker"}
	if _, err := engine.ParseVariant(c.Engine); err != nil {
		problems.Add("engine: %v", err)
	}
	if strings.TrimSpace(c.WordlistPath) == "" {
		problems.Add("wordlist_path is required")
	}
	if c.Cores < 0 {
		problems.Add("cores cannot be negative")
	}
	return problems.OrNil()
}

// Validate checks the email section.
func (e Email) Validate() error {
	problems := &domain.ConfigurationError{Section: "email"}
	if strings.TrimSpace(e.Host) == "" {
		problems.Add("host is required")
	}
	if e.Port <= 0 || e.Port > 65535 {
		problems.Add("port %d is out of range", e.Port)
	}
	if !strings.Contains(e.Sender, "@") {
		problems.Add("sender must be an e-mail address")
	}
	return problems.OrNil()
}

// Validate checks the replication section.
func (r Replication) Validate() error {
	problems := &domain.ConfigurationError{Section: "replication"}
	switch r.Method {
	case MethodDRSR:
	case MethodSamba:
		if r.SambaTool == "" || r.Pdbedit == "" {
			problems.Add("samba_tool and pdbedit are required for method %q", MethodSamba)
		}
	default:
		problems.Add("method %q is not valid (valid: %s, %s)", r.Method, MethodDRSR, MethodSamba)
	}
	return problems.OrNil()
}

func (c *Config) validateGeneral() error {
	problems := &domain.ConfigurationError{Section: "general"}
	if c.Scheduler.PollInterval <= 0 {
		problems.Add("scheduler.poll_interval must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems.Add("log_level: %v", err)
	}
	if f := strings.ToLower(c.LogFormat); f != "" && f != logging.FormatText && f != logging.FormatJSON {
		problems.Add("log_format %q is not valid (valid: text, json)", c.LogFormat)
	}
	if c.ReportURL != "" {
		u, err := url.Parse(c.ReportURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems.Add("report_url must be an http(s) URL")
		}
	}
	return problems.OrNil()
}

// EngineOptions turns the cracker section into engine options. The
// hash file and work directory are left to the job.
func (c Cracker) EngineOptions() (engine.Options, error) {
	variant, err := engine.ParseVariant(c.Engine)
	if err != nil {
		return engine.Options{}, err
	}
	binary := c.BinaryPath
	if binary == "" {
		binary = variant.String()
	}
	return engine.Options{
		Variant:    variant,
		BinaryPath: binary,
		Wordlist:   c.WordlistPath,
		RuleFile:   c.RulePath,
		ExtraArgs:  append([]string(nil), c.ExtraArgs...),
		Cores:      c.Cores,
	}, nil
}
