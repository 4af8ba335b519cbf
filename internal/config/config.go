package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/pg"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every value the processes read from the environment. Nothing
// else in the module reads env vars directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=bigchat"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`
	ApiUrl              string `env:"API_URL,default=http://localhost:3000/api"`
	LogLevel            string `env:"LOG_LEVEL"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:3000"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=5s"`
	CorsAllowOrigin    string        `env:"CORS_ALLOW_ORIGIN"`

	RelayListenAddr     string `env:"RELAY_LISTEN_ADDR,default=:3001"`
	RelayAuthorizeJoins bool   `env:"RELAY_AUTHORIZE_JOINS,default=true"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	DBAutoMigrate bool `env:"DB_AUTO_MIGRATE,default=false"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE,default=0"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=bigchat:"`

	EventsStream            string        `env:"EVENTS_STREAM,default=message-events"`
	EventsConsumerGroup     string        `env:"EVENTS_CONSUMER_GROUP,default=relay"`
	EventsConsumerName      string        `env:"EVENTS_CONSUMER_NAME"`
	EventsMaxRetries        int           `env:"EVENTS_MAX_RETRIES,default=3"`
	EventsVisibilityTimeout time.Duration `env:"EVENTS_VISIBILITY_TIMEOUT,default=30s"`
	EventsPollInterval      time.Duration `env:"EVENTS_POLL_INTERVAL,default=200ms"`
	EventsBatchSize         int64         `env:"EVENTS_BATCH_SIZE,default=50"`
	EventsMaxLen            int64         `env:"EVENTS_MAX_LEN,default=100000"`
	EventsEnableDLQ         bool          `env:"EVENTS_ENABLE_DLQ,default=true"`
	EventsWorkers           int           `env:"EVENTS_WORKERS,default=8"`

	PromNamespace string `env:"PROM_NAMESPACE,default=bigchat"`

	JwtSecret     string        `env:"JWT_SECRET,default=bcb_secret_key"`
	JwtExpiration time.Duration `env:"JWT_EXPIRATION,default=24h"`

	MessagePriceNormal             string `env:"MESSAGE_PRICE_NORMAL,default=0.25"`
	MessagePriceUrgent             string `env:"MESSAGE_PRICE_URGENT,default=0.50"`
	MessagePaginationDefault       int    `env:"MESSAGE_PAGINATION_DEFAULT,default=20"`
	MessagePaginationMax           int    `env:"MESSAGE_PAGINATION_MAX,default=100"`
	MessageStrictStatusTransitions bool   `env:"MESSAGE_STRICT_STATUS_TRANSITIONS,default=false"`

	ClientPrepaidInitialBalance string `env:"CLIENT_PREPAID_INITIAL_BALANCE,default=10.00"`
	ClientPostpaidLimit         string `env:"CLIENT_POSTPAID_LIMIT,default=100.00"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	c := &Config{}
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	if c.LogLevel != "" {
		logger.SetLevel(c.LogLevel)
	}

	config = c
	return nil
}

// Set replaces the loaded configuration. Tests and tools that build a
// Config by hand use it.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func (c *Config) CorsOrigins() []string {
	if c.CorsAllowOrigin == "" {
		return nil
	}
	return strings.Split(c.CorsAllowOrigin, ",")
}

// EnvPathFromArgs returns the value of a --env=path argument when the file
// exists, otherwise fallback if that file exists, otherwise "".
func EnvPathFromArgs(args []string, fallback string) string {
	for _, v := range args {
		if p, ok := strings.CutPrefix(v, "--env="); ok {
			if fileExists(p) {
				return p
			}
			logger.Error("failed to open the passed env file", "path", p)
			return ""
		}
	}
	if fallback != "" && fileExists(fallback) {
		return fallback
	}
	return ""
}

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}
