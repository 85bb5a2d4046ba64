package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	LogLevel   string  `yaml:"log-level"   env:"RENJU_LOG_LEVEL"   env-default:"info"`
	HTTPPort   string  `yaml:"http-port"   env:"RENJU_HTTP_PORT"   env-default:"9090"`
	SocketPort string  `yaml:"socket-port" env:"RENJU_SOCKET_PORT" env-default:"8080"`
	Storage    string  `yaml:"storage"     env:"RENJU_STORAGE"     env-default:"redis"`
	Redis      Redis   `yaml:"redis"`
	Tracing    Tracing `yaml:"tracing"`
}

type Redis struct {
	Host     string `yaml:"host"     env:"RENJU_REDIS_HOST"     env-default:"localhost"`
	Port     string `yaml:"port"     env:"RENJU_REDIS_PORT"     env-default:"6379"`
	Password string `yaml:"password" env:"RENJU_REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"RENJU_REDIS_DB"       env-default:"0"`
}

type Tracing struct {
	ServiceName string `yaml:"service-name" env:"RENJU_TRACING_SERVICE_NAME" env-default:"renju-backend"`
	// Endpoint of an OTLP/HTTP collector; tracing is off when empty.
	Endpoint string `yaml:"endpoint" env:"RENJU_TRACING_ENDPOINT"`
}

// MustLoad - load all configurations in config.yml file, with .env and environment overrides.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to load .env file: %w", err)
	}

	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if config.Storage != StorageRedis && config.Storage != StorageMemory {
		return nil, fmt.Errorf("unknown storage %q, expected %s or %s", config.Storage, StorageRedis, StorageMemory)
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
