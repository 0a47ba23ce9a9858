package env

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	// Host of the server. A path starting with "/" is a unix socket
	Host string `env:"REDISFAST_HOST,default=127.0.0.1" mapstructure:"host"`
	Port int    `env:"REDISFAST_PORT,default=6379" mapstructure:"port"`

	// Socket is a unix socket path, it takes precedence over Host and Port
	Socket string `env:"REDISFAST_SOCKET" mapstructure:"socket"`

	DialTimeout time.Duration `env:"REDISFAST_DIAL_TIMEOUT,default=5s" mapstructure:"dial_timeout"`
	KeepAlive   time.Duration `env:"REDISFAST_KEEPALIVE,default=30s" mapstructure:"keepalive"`

	LogLevel string `env:"REDISFAST_LOG_LEVEL,default=info" mapstructure:"log_level"`

	// LogFile sends logs to a rotated file instead of stderr
	LogFile string `env:"REDISFAST_LOG_FILE" mapstructure:"log_file"`

	HTTPAddr  string `env:"REDISFAST_HTTP_ADDR,default=127.0.0.1:7380" mapstructure:"http_addr"`
	DebugHTTP bool   `env:"REDISFAST_DEBUG_HTTP" mapstructure:"debug_http"`
}

// LoadConfig reads .env.local if present, then the environment, then file
// when it is not empty. Later sources win.
func LoadConfig(ctx context.Context, file string) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	if file == "" {
		return &config, nil
	}

	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
	}

	return &config, nil
}

// Server returns the host and port to connect to.
func (c *Config) Server() (string, int) {
	if c.Socket != "" {
		return c.Socket, 0
	}
	return c.Host, c.Port
}
