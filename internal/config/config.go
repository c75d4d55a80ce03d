package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Local struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
	AvatarRef   string `mapstructure:"avatar_ref"`
}

// Contact is a directory entry as written in the config file.
type Contact struct {
	DisplayName string `mapstructure:"display_name"`
	AvatarRef   string `mapstructure:"avatar_ref"`
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	SignalURL  string        `mapstructure:"signal_url"`
	ICEServers []string      `mapstructure:"ice_servers"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	// RecordDir, when set, receives a recording of every remote stream.
	RecordDir string `mapstructure:"record_dir"`

	Local     Local              `mapstructure:"local"`
	Directory map[string]Contact `mapstructure:"directory"`

	TickPeriod             time.Duration `mapstructure:"tick_period"`
	AcquireTimeout         time.Duration `mapstructure:"acquire_timeout"`
	SignalTimeout          time.Duration `mapstructure:"signal_timeout"`
	BreakoutDefaultMinutes int           `mapstructure:"breakout_default_minutes"`

	RateLimit        int           `mapstructure:"rate_limit"`
	RateInterval     time.Duration `mapstructure:"rate_interval"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	MaxMissed        int           `mapstructure:"max_missed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("signal_url", "ws://localhost:8081/ws")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("local.display_name", "Me")
	v.SetDefault("tick_period", "1s")
	v.SetDefault("acquire_timeout", "15s")
	v.SetDefault("signal_timeout", "5s")
	v.SetDefault("breakout_default_minutes", 0)
	v.SetDefault("rate_limit", 5)
	v.SetDefault("rate_interval", "1s")
	v.SetDefault("subscriber_buffer", 8)
	v.SetDefault("max_missed", 16)
}

// Load reads config/config.<CONFIG_ENV>.yaml; a missing file leaves the
// defaults in place.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.TickPeriod <= 0:
		return fmt.Errorf("tick_period must be positive")
	case c.BreakoutDefaultMinutes < 0 || c.BreakoutDefaultMinutes > 240:
		return fmt.Errorf("breakout_default_minutes must be within 0..240")
	case c.RateLimit <= 0 || c.RateInterval <= 0:
		return fmt.Errorf("rate_limit and rate_interval must be positive")
	}
	return nil
}
