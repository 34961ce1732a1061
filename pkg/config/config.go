package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/x1thexxx-lgtm/hostinv/pkg/remote"
)

// EnvPrefix is the prefix of environment overrides, e.g. HOSTINV_SSH_USER.
const EnvPrefix = "HOSTINV"

// Host-key policies understood by the remote package.
const (
	HostKeyTrustOnFirstUse = remote.PolicyTrustOnFirstUse
	HostKeyKnownHosts      = remote.PolicyKnownHosts
)

const (
	defaultWorkers = 10
	defaultOutput  = "server_inventory.xlsx"
	defaultPort    = 22
	defaultTimeout = 10 * time.Second
	defaultTick    = "24h"
)

// Config represents the inventory configuration file.
type Config struct {
	Servers   []string        `yaml:"servers"`
	IPServers []string        `yaml:"ip_servers" split_words:"true"`
	SSH       SSHConfig       `yaml:"ssh"`
	Workers   int             `yaml:"workers"`
	Output    string          `yaml:"output"`
	GLPI      GLPIConfig      `yaml:"glpi"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SSHConfig is the single identity used for every host.
type SSHConfig struct {
	User          string        `yaml:"user"`
	KeyFile       string        `yaml:"key_file" split_words:"true"`
	Password      string        `yaml:"password"`
	Port          int           `yaml:"port"`
	HostKeyPolicy string        `yaml:"host_key_policy" split_words:"true"`
	KnownHosts    string        `yaml:"known_hosts" split_words:"true"`
	Timeout       time.Duration `yaml:"timeout"`
}

// GLPIConfig stores API information.
type GLPIConfig struct {
	BaseURL   string           `yaml:"base_url" split_words:"true"`
	AppToken  string           `yaml:"app_token" split_words:"true"`
	UserToken string           `yaml:"user_token" split_words:"true"`
	OAuth     *GLPIOAuthConfig `yaml:"oauth"`
}

// GLPIOAuthConfig stores OAuth2 credentials for the high-level API.
type GLPIOAuthConfig struct {
	ClientID     string `yaml:"client_id" split_words:"true"`
	ClientSecret string `yaml:"client_secret" split_words:"true"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Scope        string `yaml:"scope"`
}

// StoreConfig enables the SQLite snapshot history.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig enables the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// SchedulerConfig configures periodic re-runs.
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Tick    string `yaml:"tick"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// Load reads a YAML (or JSON) configuration file, applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.Output == "" {
		c.Output = defaultOutput
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = defaultPort
	}
	if c.SSH.Timeout == 0 {
		c.SSH.Timeout = defaultTimeout
	}
	if c.SSH.HostKeyPolicy == "" {
		c.SSH.HostKeyPolicy = HostKeyTrustOnFirstUse
	}
	c.SSH.KeyFile = expandHome(c.SSH.KeyFile)
	c.SSH.KnownHosts = expandHome(c.SSH.KnownHosts)
	if c.Scheduler.Tick == "" {
		c.Scheduler.Tick = defaultTick
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Identity builds the remote login identity from the ssh section.
func (c *Config) Identity() remote.Identity {
	return remote.Identity{
		User:     c.SSH.User,
		KeyFile:  c.SSH.KeyFile,
		Password: c.SSH.Password,
		Port:     c.SSH.Port,
		Timeout:  c.SSH.Timeout,
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if strings.TrimSpace(c.SSH.User) == "" {
		result = multierror.Append(result, errors.New("ssh.user is required"))
	}
	if c.SSH.KeyFile == "" && c.SSH.Password == "" {
		result = multierror.Append(result, errors.New("ssh.key_file or ssh.password is required"))
	}
	switch c.SSH.HostKeyPolicy {
	case HostKeyTrustOnFirstUse:
	case HostKeyKnownHosts:
		if c.SSH.KnownHosts == "" {
			result = multierror.Append(result, errors.New("ssh.known_hosts is required for the known_hosts policy"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown ssh.host_key_policy %q", c.SSH.HostKeyPolicy))
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid ssh.port %d", c.SSH.Port))
	}
	if c.SSH.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid ssh.timeout %s", c.SSH.Timeout))
	}
	if c.Workers < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid workers %d", c.Workers))
	}
	if c.Scheduler.Enabled {
		if tick, err := time.ParseDuration(c.Scheduler.Tick); err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid scheduler.tick: %w", err))
		} else if tick <= 0 {
			result = multierror.Append(result, fmt.Errorf("invalid scheduler.tick %s", c.Scheduler.Tick))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	return result.ErrorOrNil()
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
