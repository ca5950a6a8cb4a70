// Package config loads burrow's settings from defaults, ~/.burrow/config.json
// and BURROW_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "BURROW"

// Config holds persistent user settings.
type Config struct {
	ICEServers  []string `mapstructure:"ice_servers"`
	PeerAddress string   `mapstructure:"peer_address"`
	LocalPort   string   `mapstructure:"local_port"`

	TURN      TURN      `mapstructure:"turn"`
	Timeouts  Timeouts  `mapstructure:"timeouts"`
	Notify    Notify    `mapstructure:"notify"`
	Log       Log       `mapstructure:"log"`
	Discovery Discovery `mapstructure:"discovery"`
	Events    Events    `mapstructure:"events"`
}

// TURN credentials are attached to every turn: or turns: entry in ICEServers.
type TURN struct {
	Username   string `mapstructure:"username"`
	Credential string `mapstructure:"credential"`
}

type Timeouts struct {
	ICE        time.Duration `mapstructure:"ice"`
	TCPConnect time.Duration `mapstructure:"tcp_connect"`
	FileIO     time.Duration `mapstructure:"file_io"`
}

type Notify struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type Log struct {
	MaxEntries int    `mapstructure:"max_entries"`
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
}

type Discovery struct {
	Advertise bool `mapstructure:"advertise"`
}

// Events configures the optional MQTT mirror. An empty broker disables it.
type Events struct {
	Broker string `mapstructure:"broker"`
	Topic  string `mapstructure:"topic"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("peer_address", "localhost:25565")
	v.SetDefault("local_port", "25565")

	v.SetDefault("turn.username", "")
	v.SetDefault("turn.credential", "")

	v.SetDefault("timeouts.ice", "30s")
	v.SetDefault("timeouts.tcp_connect", "10s")
	v.SetDefault("timeouts.file_io", "5s")

	v.SetDefault("notify.ttl", "5s")

	v.SetDefault("log.max_entries", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("discovery.advertise", false)

	v.SetDefault("events.broker", "")
	v.SetDefault("events.topic", "burrow/sessions")
}

var dirOverride string

// SetDirOverride points the config directory somewhere else. Tests use it
// to stay out of the real home directory.
func SetDirOverride(dir string) { dirOverride = dir }

// Dir returns ~/.burrow, creating it if needed.
func Dir() (string, error) {
	dir := dirOverride
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".burrow")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func resolve(configFile string) (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return Path()
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Load reads configFile, or ~/.burrow/config.json when it is empty. A
// missing file is not an error.
func Load(configFile string) (*Config, error) {
	path, err := resolve(configFile)
	if err != nil {
		return nil, err
	}
	v := newViper(path)
	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Settings returns the effective flattened settings for display.
func Settings(configFile string) (map[string]any, error) {
	path, err := resolve(configFile)
	if err != nil {
		return nil, err
	}
	v := newViper(path)
	if err := readConfig(v); err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for _, key := range v.AllKeys() {
		out[key] = v.Get(key)
	}
	return out, nil
}

// Keys lists every setting name Set accepts.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// Set persists one setting to the config file. Environment overrides are
// not written back.
func Set(configFile, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	known := false
	for _, k := range Keys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown setting %q", key)
	}

	path, err := resolve(configFile)
	if err != nil {
		return err
	}

	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("json")
	if err := readConfig(file); err != nil {
		return err
	}

	if key == "ice_servers" {
		var urls []string
		for _, u := range strings.Split(value, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		file.Set(key, urls)
	} else {
		file.Set(key, value)
	}

	// Validate the merged result before touching the file.
	probe := newViper(path)
	if err := readConfig(probe); err != nil {
		return err
	}
	probe.Set(key, file.Get(key))
	var cfg Config
	if err := probe.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return file.WriteConfigAs(path)
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	var errs []error

	if _, err := strconv.ParseUint(c.LocalPort, 10, 16); err != nil {
		errs = append(errs, fmt.Errorf("local_port %q is not a port number", c.LocalPort))
	}
	if _, _, err := net.SplitHostPort(c.PeerAddress); err != nil {
		errs = append(errs, fmt.Errorf("peer_address %q: %w", c.PeerAddress, err))
	}
	for name, d := range map[string]time.Duration{
		"timeouts.ice":         c.Timeouts.ICE,
		"timeouts.tcp_connect": c.Timeouts.TCPConnect,
		"timeouts.file_io":     c.Timeouts.FileIO,
		"notify.ttl":           c.Notify.TTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Log.MaxEntries <= 0 {
		errs = append(errs, errors.New("log.max_entries must be positive"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}
