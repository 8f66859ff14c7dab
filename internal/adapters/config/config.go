package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/mikey-austin/sonic_utopia/internal/servers"
)

// Config holds CLI configuration from config.toml.
type Config struct {
	Broker    string               `toml:"broker"`
	Identity  string               `toml:"identity"`
	TopicBase string               `toml:"topic_base"`
	PageSize  int                  `toml:"page_size"`
	Servers   []servers.Connection `toml:"servers"`
	Aliases   map[string]string    `toml:"aliases"`
	Defaults  Defaults             `toml:"defaults"`
}

// Defaults defines default selector values.
type Defaults struct {
	Server string `toml:"server"`
	Player string `toml:"player"`
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(path)
}

// LoadFile loads the config at path. Missing file returns an empty config.
func LoadFile(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{Aliases: map[string]string{}}, nil
		}
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	for _, conn := range cfg.Servers {
		if err := conn.Validate(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func configPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "sonic", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sonic", "config.toml"), nil
}
