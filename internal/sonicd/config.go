package sonicd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mikey-austin/sonic_utopia/internal/servers"
)

// Config is the top-level configuration for sonicd.
type Config struct {
	Server  ServerConfig         `toml:"server"`
	Servers []servers.Connection `toml:"servers"`
	Modules ModulesConfig        `toml:"modules"`
}

// ServerConfig defines shared daemon settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogSource bool       `toml:"log_source"`
	LogUTC    bool       `toml:"log_utc"`
	LogColor  bool       `toml:"log_color"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	Player       PlayerConfig       `toml:"player"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// PlayerConfig configures the player node.
type PlayerConfig struct {
	Enabled      bool   `toml:"enabled"`
	NodeID       string `toml:"node_id"`
	Name         string `toml:"name"`
	ActiveServer string `toml:"active_server"`
	MPDAddress   string `toml:"mpd_address"`
	MPDPassword  string `toml:"mpd_password"`
	Mirror       bool   `toml:"mirror"`
	TimeoutMS    int64  `toml:"timeout_ms"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// TLSEnabled reports whether the embedded broker serves TLS.
func (c EmbeddedMQTTConfig) TLSEnabled() bool {
	return c.TLSCert != "" || c.TLSKey != "" || c.TLSCA != ""
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks server entries and the player's active server.
func (c Config) Validate() error {
	seen := map[string]bool{}
	for _, conn := range c.Servers {
		if err := conn.Validate(); err != nil {
			return err
		}
		if seen[conn.ID] {
			return fmt.Errorf("duplicate server id %q", conn.ID)
		}
		seen[conn.ID] = true
	}
	if active := c.Modules.Player.ActiveServer; active != "" && !seen[active] {
		return fmt.Errorf("active_server %q is not configured", active)
	}
	return nil
}

// DefaultNodeID derives a player node id from the host name.
func DefaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	host = strings.ToLower(strings.SplitN(host, ".", 2)[0])
	return "sonic:player:" + host
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "sonic", "sonicd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sonic", "sonicd.toml"), nil
}
