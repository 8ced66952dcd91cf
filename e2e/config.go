package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_ADDR is the host:port of a running relay's WebSocket listener; empty skips the suites
	RelayAddr string `envconfig:"RELAY_ADDR"`
	AdminAddr string `envconfig:"ADMIN_ADDR"`
	// E2E_TOKEN is sent to the admin service when the relay requires one
	Token string `envconfig:"E2E_TOKEN"`
	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
