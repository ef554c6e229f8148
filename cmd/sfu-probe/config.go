package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerURL         string        `mapstructure:"server_url"`
	RoomId            string        `mapstructure:"room_id"`
	DisplayName       string        `mapstructure:"display_name"`
	EnableAudio       bool          `mapstructure:"enable_audio"`
	EnableVideo       bool          `mapstructure:"enable_video"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
}

func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("probe")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SFU_PROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_url", "ws://127.0.0.1:8080/ws")
	v.SetDefault("room_id", "probe")
	v.SetDefault("display_name", "sfu-probe")
	v.SetDefault("enable_audio", true)
	v.SetDefault("enable_video", true)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("reconnect_attempts", 3)

	// A missing config file is fine; env vars and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
