package core

import "github.com/mikey-austin/sonic_utopia/internal/servers"

// Config is runtime configuration for the CLI.
type Config struct {
	Broker    string
	Identity  string
	TopicBase string
	PageSize  int
	Servers   []servers.Connection
	Aliases   map[string]string
	Defaults  Defaults
}

// Defaults defines default selector values.
type Defaults struct {
	Server string
	Player string
}
