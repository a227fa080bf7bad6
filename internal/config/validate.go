package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// required is the subset of settings the server cannot start without
type required struct {
	ClientID      string `validate:"required"`
	ClientSecret  string `validate:"required"`
	ClientHost    string `validate:"required,url"`
	APIURL        string `validate:"required,url"`
	SessionSecret string `validate:"required,min=32"`
	EncryptionKey string `validate:"required_with=RedisAddr,omitempty,hexadecimal,len=64"`
	RedisAddr     string `validate:"omitempty,hostname_port"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration is complete enough to run the server
func Validate(c Config) error {
	r := required{
		ClientID:      c.GetClientID(),
		ClientSecret:  c.GetClientSecret(),
		ClientHost:    c.GetClientHost(),
		APIURL:        c.GetAPIURL(),
		SessionSecret: c.GetSessionSecret(),
		EncryptionKey: c.GetSessionEncryptionKey(),
		RedisAddr:     c.GetRedisAddr(),
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("[config Validate] %w", err)
	}
	return nil
}
