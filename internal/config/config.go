package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type EncoderConfig struct {
	Command    string `mapstructure:"command"`
	FrameRate  int    `mapstructure:"frame_rate"`
	ScaleWidth int    `mapstructure:"scale_width"`
	Quality    int    `mapstructure:"quality"`
}

type TransformConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type TerminalConfig struct {
	Shell string `mapstructure:"shell"`
	Cols  uint16 `mapstructure:"cols"`
	Rows  uint16 `mapstructure:"rows"`
}

type Config struct {
	Mode       string          `mapstructure:"mode"`
	Port       int             `mapstructure:"port"`
	ReadLimit  int64           `mapstructure:"read_limit"`
	PingPeriod time.Duration   `mapstructure:"ping_period"`
	Encoder    EncoderConfig   `mapstructure:"encoder"`
	Transform  TransformConfig `mapstructure:"transform"`
	Terminal   TerminalConfig  `mapstructure:"terminal"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("read_limit", 1<<22) // frames arrive base64-encoded
	v.SetDefault("ping_period", "54s")
	v.SetDefault("encoder.command", "ffmpeg")
	v.SetDefault("encoder.frame_rate", 10)
	v.SetDefault("encoder.scale_width", 640)
	v.SetDefault("encoder.quality", 5)
	v.SetDefault("transform.command", "")
	v.SetDefault("terminal.shell", "")
	v.SetDefault("terminal.cols", 80)
	v.SetDefault("terminal.rows", 24)
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
