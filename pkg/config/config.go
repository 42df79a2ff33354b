package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// App holds application configuration.
type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// IsStrict reports whether contract violations should panic instead of being skipped.
func (a App) IsStrict() bool {
	return a.Env == "development" || a.Env == "test"
}

// Logger holds logger configuration.
type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// Database holds database configuration.
type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// Redis holds Redis configuration.
type Redis struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

// API holds API server configuration.
type API struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Load reads an optional .env file, then the YAML file at path, and unmarshals
// into config. Environment variables override file values (database.host -> DATABASE_HOST).
func Load(path string, config interface{}, defaults map[string]interface{}) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Println("Failed to read config file, falling back to environment variables")
	}

	return v.Unmarshal(config)
}
