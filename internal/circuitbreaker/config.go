package circuitbreaker

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CircuitBreakerConfig is the env-tunable form of Config.
type CircuitBreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// GetRedisConfig returns Redis circuit breaker configuration from environment variables
func GetRedisConfig() CircuitBreakerConfig {
	return fromEnv("REDIS", CircuitBreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// GetDatabaseConfig returns campaign database circuit breaker configuration from environment variables
func GetDatabaseConfig() CircuitBreakerConfig {
	return fromEnv("DB", CircuitBreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	})
}

// GetHTTPConfig returns HTTP circuit breaker configuration from environment variables.
// A non-empty service (e.g. "qdrant", "telegram") reads CB_<SERVICE>_* before CB_HTTP_*.
func GetHTTPConfig(service string) CircuitBreakerConfig {
	cfg := fromEnv("HTTP", CircuitBreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
	if service != "" {
		cfg = fromEnv(strings.ToUpper(strings.ReplaceAll(service, "-", "_")), cfg)
	}
	return cfg
}

// ToConfig converts CircuitBreakerConfig to circuit breaker Config
func (cbc CircuitBreakerConfig) ToConfig() Config {
	return Config{
		MaxRequests:      cbc.MaxRequests,
		Interval:         cbc.Interval,
		Timeout:          cbc.Timeout,
		FailureThreshold: cbc.FailureThreshold,
		SuccessThreshold: cbc.SuccessThreshold,
	}
}

func fromEnv(prefix string, def CircuitBreakerConfig) CircuitBreakerConfig {
	p := "CB_" + prefix + "_"
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32(p+"MAX_REQUESTS", def.MaxRequests),
		Interval:         getEnvDuration(p+"INTERVAL", def.Interval),
		Timeout:          getEnvDuration(p+"TIMEOUT", def.Timeout),
		FailureThreshold: getEnvUint32(p+"FAILURE_THRESHOLD", def.FailureThreshold),
		SuccessThreshold: getEnvUint32(p+"SUCCESS_THRESHOLD", def.SuccessThreshold),
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
