package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Guilds    []string `mapstructure:"guilds"`
	Directory DirectoryConfig
	Sync      SyncConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address          string
	Auth             AuthConfig
	ConnectionLimit  int           `mapstructure:"connectionLimit"`
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
	MetricsEnabled   bool          `mapstructure:"metricsEnabled"`
}

// AuthConfig guards the admin HTTP API, not the relay sockets. Relay
// clients authenticate in-band with bridge keys.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type DirectoryConfig struct {
	BaseURL   string          `mapstructure:"baseURL"`
	APIKey    string          `mapstructure:"apiKey"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

type RateLimitConfig struct {
	MaxCalls     int           `mapstructure:"maxCalls"`
	Window       time.Duration `mapstructure:"window"`
	SafetyBuffer int           `mapstructure:"safetyBuffer"`
}

type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type StorageConfig struct {
	MemberFile string `mapstructure:"memberFile"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
}
