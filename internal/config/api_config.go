package config

import "time"

type API struct{}

var _ APIConfig = API{}

func (API) GetAPIURL() string {
	return GetEnv("API_URL", "https://api.monzo.com")
}

func (API) GetAPITimeout() time.Duration {
	return GetEnvDuration("API_TIMEOUT", 10*time.Second)
}

func (API) GetAPIMaxAttempts() int {
	return GetEnvInt("API_MAX_ATTEMPTS", 4)
}

func (API) GetAPIBackoffBase() time.Duration {
	return GetEnvDuration("API_BACKOFF_BASE", 250*time.Millisecond)
}

func (API) GetAPIBackoffMax() time.Duration {
	return GetEnvDuration("API_BACKOFF_MAX", 8*time.Second)
}

func (API) GetAPIPageSize() int {
	return GetEnvInt("API_PAGE_SIZE", 100)
}
