package main

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host            string        `env:"HOST,default=0.0.0.0" validate:"required"`
	Port            int           `env:"PORT,default=8080" validate:"min=0,max=65535"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"required"`
	MailboxCapacity int           `env:"MAILBOX_CAPACITY,default=128" validate:"min=1"`
	RegistryShards  int           `env:"REGISTRY_SHARDS,default=32" validate:"min=1,max=4096"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT,default=2s" validate:"gt=0"`
	MaxLineLength   int           `env:"MAX_LINE_LENGTH,default=4096" validate:"min=16"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"gt=0"`
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
