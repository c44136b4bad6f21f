package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type AppConfig struct {
	App struct {
		Name     string `mapstructure:"NAME"`
		Port     string `mapstructure:"PORT"`
		LogLevel string `mapstructure:"LOG_LEVEL"`
	}

	DATABASE struct {
		Postgres struct {
			DSN             string        `mapstructure:"URL"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			MaxIdleConns    int           `mapstructure:"MAX_IDLE_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
		}
		Redis struct {
			Addr     string `mapstructure:"ADDR"`
			Password string `mapstructure:"PASSWORD"`
			DB       int    `mapstructure:"DB"`
		}
		Mongo struct {
			Url      string `mapstructure:"URL"`
			Database string `mapstructure:"DATABASE"`
		}
	}

	AUTH struct {
		PublicKeyPath  string `mapstructure:"PUBLIC_KEY_PATH"`
		PrivateKeyPath string `mapstructure:"PRIVATE_KEY_PATH"`
	}

	REALTIME struct {
		TypingWindow        time.Duration `mapstructure:"TYPING_WINDOW"`
		TypingSweepInterval time.Duration `mapstructure:"TYPING_SWEEP_INTERVAL"`
		SendBuffer          int           `mapstructure:"SEND_BUFFER"`
		MaxConnections      int           `mapstructure:"MAX_CONNECTIONS"`
		ConnectionsPerIP    int           `mapstructure:"CONNECTIONS_PER_IP"`
		EventsPerSecond     float64       `mapstructure:"EVENTS_PER_SECOND"`
		EventBurst          int           `mapstructure:"EVENT_BURST"`
		AllowedOrigins      []string      `mapstructure:"ALLOWED_ORIGINS"`
	}

	WORKER struct {
		Count        int           `mapstructure:"COUNT"`
		PollInterval time.Duration `mapstructure:"POLL_INTERVAL"`
		MaxRetries   int           `mapstructure:"MAX_RETRIES"`
		BaseBackoff  time.Duration `mapstructure:"BASE_BACKOFF"`
		DLQInterval  time.Duration `mapstructure:"DLQ_INTERVAL"`
	}
}

var Conf *AppConfig

func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP.NAME", "teamchat-realtime")
	v.SetDefault("APP.PORT", ":8080")
	v.SetDefault("APP.LOG_LEVEL", "info")

	v.SetDefault("DATABASE.POSTGRES.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.POSTGRES.MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE.POSTGRES.CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DATABASE.REDIS.ADDR", "localhost:6379")
	v.SetDefault("DATABASE.REDIS.DB", 0)
	v.SetDefault("DATABASE.MONGO.DATABASE", "teamchat")

	v.SetDefault("AUTH.PUBLIC_KEY_PATH", "public.pem")

	v.SetDefault("REALTIME.TYPING_WINDOW", 3*time.Second)
	v.SetDefault("REALTIME.TYPING_SWEEP_INTERVAL", time.Second)
	v.SetDefault("REALTIME.SEND_BUFFER", 256)
	v.SetDefault("REALTIME.MAX_CONNECTIONS", 10000)
	v.SetDefault("REALTIME.CONNECTIONS_PER_IP", 20)
	v.SetDefault("REALTIME.EVENTS_PER_SECOND", 20.0)
	v.SetDefault("REALTIME.EVENT_BURST", 40)

	v.SetDefault("WORKER.COUNT", 5)
	v.SetDefault("WORKER.POLL_INTERVAL", time.Second)
	v.SetDefault("WORKER.MAX_RETRIES", 5)
	v.SetDefault("WORKER.BASE_BACKOFF", 2*time.Second)
	v.SetDefault("WORKER.DLQ_INTERVAL", 10*time.Second)
}

// BindFlags registers the command line flags that override file and env values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("config", "", "path to application.yaml")
	fs.String("addr", "", "listen address, e.g. :8080")

	if err := v.BindPFlag("CONFIG_FILE", fs.Lookup("config")); err != nil {
		return err
	}
	return v.BindPFlag("APP.PORT", fs.Lookup("addr"))
}

// Load reads application.yaml (optional) and CHATAPP_* env into an AppConfig.
func Load(v *viper.Viper) (*AppConfig, error) {
	SetDefaults(v)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("application")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CHATAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Warn().Msg("config: application.yaml not found, using defaults and env")
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &config, nil
}

func LoadConfig() error {
	config, err := Load(viper.GetViper())
	if err != nil {
		return err
	}

	Conf = config
	log.Info().Msg("configuration loaded...")
	return nil
}
