package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"uptimeboard/internal/services"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment key, e.g.
// UPTIMEBOARD_BACKEND_API_URL. Keys are chosen not to collide with common
// unprefixed variables, since envconfig falls back to the bare tag.
const EnvPrefix = "UPTIMEBOARD"

type BackendConfig struct {
	APIURL         string        `yaml:"api_url" envconfig:"API_URL" default:"http://localhost:3000"`
	SocketURL      string        `yaml:"socket_url" envconfig:"SOCKET_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"15s"`
}

type ChannelConfig struct {
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" envconfig:"RECONNECT_DELAY" default:"1s"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" envconfig:"RECONNECT_ATTEMPTS" default:"5"`
}

type SeriesConfig struct {
	MainCapacity  int    `yaml:"main_capacity" envconfig:"MAIN_CAPACITY" default:"100"`
	PopupCapacity int    `yaml:"popup_capacity" envconfig:"POPUP_CAPACITY" default:"100"`
	InsertPolicy  string `yaml:"insert_policy" envconfig:"INSERT_POLICY" default:"append"`
}

type LoaderConfig struct {
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY" default:"8"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" envconfig:"LISTEN_HOST" default:"localhost"`
	Port           int      `yaml:"port" envconfig:"LISTEN_PORT" default:"8080"`
	AllowedIPs     []string `yaml:"allowed_ips" envconfig:"ALLOWED_IPS"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

type StorageConfig struct {
	// Empty means ~/.uptimeboard/credentials.db
	Path string `yaml:"path" envconfig:"CREDENTIALS_PATH"`
}

// Config is the whole client configuration
type Config struct {
	Backend BackendConfig `yaml:"backend" envconfig:"BACKEND"`
	Channel ChannelConfig `yaml:"channel" envconfig:"CHANNEL"`
	Series  SeriesConfig  `yaml:"series" envconfig:"SERIES"`
	Loader  LoaderConfig  `yaml:"loader" envconfig:"LOADER"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Storage StorageConfig `yaml:"storage" envconfig:"STORAGE"`
}

// Load reads defaults and environment, then overlays the YAML file at path
// if there is one. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := cfg.fill(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fill derives values left empty
func (c *Config) fill() error {
	c.Backend.APIURL = strings.TrimRight(c.Backend.APIURL, "/")
	if c.Backend.SocketURL == "" {
		u, err := url.Parse(c.Backend.APIURL)
		if err != nil {
			return fmt.Errorf("backend.api_url: %w", err)
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path = strings.TrimRight(u.Path, "/") + "/socket"
		c.Backend.SocketURL = u.String()
	}
	if c.Storage.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("locating home directory: %w", err)
		}
		c.Storage.Path = filepath.Join(home, ".uptimeboard", "credentials.db")
	}
	return nil
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Backend.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.api_url %q must be an http(s) URL", c.Backend.APIURL))
	}
	if c.Backend.SocketURL != "" {
		if u, err := url.Parse(c.Backend.SocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("backend.socket_url %q must be a ws(s) URL", c.Backend.SocketURL))
		}
	}
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, errors.New("backend.request_timeout must be positive"))
	}
	if c.Channel.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("channel.reconnect_delay must be positive"))
	}
	if c.Channel.ReconnectAttempts <= 0 {
		errs = append(errs, errors.New("channel.reconnect_attempts must be positive"))
	}
	if c.Series.MainCapacity <= 0 {
		errs = append(errs, errors.New("series.main_capacity must be positive"))
	}
	if c.Series.PopupCapacity <= 0 {
		errs = append(errs, errors.New("series.popup_capacity must be positive"))
	}
	if _, err := services.ParseInsertPolicy(c.Series.InsertPolicy); err != nil {
		errs = append(errs, fmt.Errorf("series.insert_policy: %w", err))
	}
	if c.Loader.Concurrency <= 0 {
		errs = append(errs, errors.New("loader.concurrency must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

// ListenAddr is where the dashboard server binds
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SessionConfig maps the settings onto a session
func (c *Config) SessionConfig() services.SessionConfig {
	policy, _ := services.ParseInsertPolicy(c.Series.InsertPolicy)
	return services.SessionConfig{
		Channel: services.ChannelConfig{
			URL:               c.Backend.SocketURL,
			ReconnectDelay:    c.Channel.ReconnectDelay,
			ReconnectAttempts: c.Channel.ReconnectAttempts,
		},
		MainCapacity:      c.Series.MainCapacity,
		PopupCapacity:     c.Series.PopupCapacity,
		InsertPolicy:      policy,
		LoaderConcurrency: c.Loader.Concurrency,
		RefreshSkew:       30 * time.Second,
	}
}
