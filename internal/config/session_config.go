package config

import "time"

type SessionConfig interface {
	GetSessionSecret() string
	GetSessionMaxAge() time.Duration
	GetRedisAddr() string
	GetSessionEncryptionKey() string
}

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionSecret is the HMAC key for the session cookie
func (Session) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", "")
}

func (Session) GetSessionMaxAge() time.Duration {
	return GetEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour)
}

// GetRedisAddr selects the Redis session repo when set; sessions are kept in memory otherwise
func (Session) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

// GetSessionEncryptionKey is a hex encoded 32 byte key used to seal session records at rest
func (Session) GetSessionEncryptionKey() string {
	return GetEnv("SESSION_ENCRYPTION_KEY", "")
}
