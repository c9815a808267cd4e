package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.auth.jwtSecret", "")
	v.SetDefault("server.connectionLimit", 0)
	v.SetDefault("server.handshakeTimeout", "10s")
	v.SetDefault("server.metricsEnabled", true)
	// No inbound idle timeout by default: a quiet guild keeps its
	// bridge connections open indefinitely.
	v.SetDefault("transport.readTimeout", "0")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("guilds", []string{"Ironman Sweats", "Ironman Academy", "Ironman Casuals"})
	v.SetDefault("directory.baseURL", "https://api.hypixel.net")
	v.SetDefault("directory.apiKey", "")
	v.SetDefault("directory.timeout", "15s")
	v.SetDefault("directory.rateLimit.maxCalls", 300)
	v.SetDefault("directory.rateLimit.window", "5m")
	v.SetDefault("directory.rateLimit.safetyBuffer", 10)
	v.SetDefault("sync.interval", "10m")
	v.SetDefault("storage.memberFile", "guild_members.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("IMSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Guilds) == 0 {
		return nil, errors.New("config: at least one guild must be configured")
	}

	return &cfg, nil
}
