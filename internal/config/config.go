package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Server   Server `mapstructure:"server"`
	Client   Client `mapstructure:"client"`
	Voice    Voice  `mapstructure:"voice"`
}

type Server struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	// TextRate is relayed text messages per second per client; 0 is unlimited.
	TextRate  float64 `mapstructure:"text_rate"`
	TextBurst int     `mapstructure:"text_burst"`
}

type Client struct {
	Name           string               `mapstructure:"name"`
	ServerURL      string               `mapstructure:"server_url"`
	Rooms          []string             `mapstructure:"rooms"`
	TickInterval   time.Duration        `mapstructure:"tick_interval"`
	ResendInterval time.Duration        `mapstructure:"resend_interval"`
	SendTimeout    time.Duration        `mapstructure:"send_timeout"`
	Direct         bool                 `mapstructure:"direct"`
	STUN           []string             `mapstructure:"stun"`
	Codec          domain.CodecSettings `mapstructure:"codec"`
}

type Voice struct {
	ActiveTimeout   time.Duration `mapstructure:"active_timeout"`
	InactiveTimeout time.Duration `mapstructure:"inactive_timeout"`
	BufferSize      int           `mapstructure:"buffer_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.secret", "voicemux")
	v.SetDefault("server.text_rate", 5)
	v.SetDefault("server.text_burst", 10)

	v.SetDefault("client.server_url", "ws://localhost:8080/api/ws")
	v.SetDefault("client.tick_interval", "20ms")
	v.SetDefault("client.resend_interval", "2s")
	v.SetDefault("client.send_timeout", "1s")
	v.SetDefault("client.direct", false)
	v.SetDefault("client.codec.codec", 1)
	v.SetDefault("client.codec.frame_size", 960)
	v.SetDefault("client.codec.sample_rate", 48000)

	v.SetDefault("voice.active_timeout", "1500ms")
	v.SetDefault("voice.inactive_timeout", "15s")
	v.SetDefault("voice.buffer_size", 1500)
}

// Load reads config/config.<CONFIG_ENV>.yaml. VOICEMUX_* variables override
// file values, e.g. VOICEMUX_SERVER_PORT.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit path. A missing file leaves the defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("VOICEMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
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
	log.Info().Str("module", "config").Str("mode", cfg.Server.Mode).Int("port", cfg.Server.Port).Msg("config ready")
	return &cfg, nil
}
