package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_ADDR targets an already running relay, an in-process one is started when empty
	RelayAddr string `envconfig:"RELAY_ADDR"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool          `envconfig:"E2E_COLOURS" default:"true"`
	Timeout time.Duration `envconfig:"E2E_TIMEOUT" default:"2s"`
	// Only used by the in-process relay
	MailboxCapacity int           `envconfig:"E2E_MAILBOX_CAPACITY" default:"128"`
	DeliveryTimeout time.Duration `envconfig:"E2E_DELIVERY_TIMEOUT" default:"500ms"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
