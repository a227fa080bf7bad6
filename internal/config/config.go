package config

import "time"

type Config interface {
	EnvConfig
	OAuthConfig
	APIConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIURL() string
	GetAPITimeout() time.Duration
	GetAPIMaxAttempts() int
	GetAPIBackoffBase() time.Duration
	GetAPIBackoffMax() time.Duration
	GetAPIPageSize() int
}

type mainConfig struct {
	EnvVars
	OAuth
	API
	Session
}

func New() Config {
	return mainConfig{}
}
