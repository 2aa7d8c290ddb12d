// internal/config/config.go
package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		DataPort int `mapstructure:"data_port"`
		UIPort   int `mapstructure:"ui_port"`
	} `mapstructure:"server"`
	Retention struct {
		Cap           int           `mapstructure:"cap"`
		MaxFutureSkew time.Duration `mapstructure:"max_future_skew"`
	} `mapstructure:"retention"`
	Thresholds struct {
		Rules map[string]ThresholdRule `mapstructure:"rules"`
	} `mapstructure:"thresholds"`
	Alerts struct {
		Capacity        int `mapstructure:"capacity"`
		SubscriberQueue int `mapstructure:"subscriber_queue"`
	} `mapstructure:"alerts"`
	RateLimit struct {
		MaxPerMinute int `mapstructure:"max_per_minute"`
	} `mapstructure:"rate_limit"`
	Fire struct {
		BaseURL         string        `mapstructure:"base_url"`
		WSURL           string        `mapstructure:"ws_url"`
		Timeout         time.Duration `mapstructure:"timeout"`
		ConfidenceFloor float64       `mapstructure:"confidence_floor"`
		Location        string        `mapstructure:"location"`
		Cooldown        time.Duration `mapstructure:"cooldown"`
	} `mapstructure:"fire"`
	MQTT struct {
		BrokerURL string            `mapstructure:"broker_url"`
		ClientID  string            `mapstructure:"client_id"`
		Username  string            `mapstructure:"username"`
		Password  string            `mapstructure:"password"`
		// Feeds maps broker topic -> sensor channel name.
		Feeds map[string]string `mapstructure:"feeds"`
		// Actuators maps actuator name (fan, switch, color) -> topic.
		Actuators map[string]string `mapstructure:"actuators"`
	} `mapstructure:"mqtt"`
	Auth AuthConfig `mapstructure:"auth"`
}

// ThresholdRule is one per-channel alert rule. Loaded at startup and
// immutable at runtime; a reload replaces the whole rule set.
type ThresholdRule struct {
	Limit      float64       `mapstructure:"limit"`
	Comparator string        `mapstructure:"comparator"` // ">" or "<"
	Cooldown   time.Duration `mapstructure:"cooldown"`
}

type AuthConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	JWTExpiration int      `mapstructure:"jwt_expiration"` // minutes
	APIKeys       []string `mapstructure:"api_keys"`
	Users         []User   `mapstructure:"users"`
}

type User struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

var AppConfig Config

func LoadConfig(path string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: error reading config file, using defaults: %s", err)
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Printf("Unable to decode config into struct: %v", err)
		return err
	}

	log.Printf("Configuration loaded: data_port=%d ui_port=%d channels_cap=%d",
		AppConfig.Server.DataPort, AppConfig.Server.UIPort, AppConfig.Retention.Cap)
	return nil
}

func setDefaults() {
	viper.SetDefault("server.data_port", 8080)
	viper.SetDefault("server.ui_port", 8000)
	viper.SetDefault("retention.cap", 1000)
	viper.SetDefault("retention.max_future_skew", "30s")
	viper.SetDefault("alerts.capacity", 10)
	viper.SetDefault("alerts.subscriber_queue", 16)
	viper.SetDefault("rate_limit.max_per_minute", 120)
	viper.SetDefault("fire.timeout", "5s")
	viper.SetDefault("fire.confidence_floor", 0.5)
	viper.SetDefault("fire.location", "living room")
	viper.SetDefault("fire.cooldown", "60s")
	viper.SetDefault("auth.jwt_expiration", 60)
	viper.SetDefault("thresholds.rules", map[string]ThresholdRule{
		"temperature": {Limit: 30, Comparator: ">", Cooldown: time.Minute},
		"humidity":    {Limit: 80, Comparator: ">", Cooldown: time.Minute},
		"air_quality": {Limit: 150, Comparator: ">", Cooldown: time.Minute},
	})
}
