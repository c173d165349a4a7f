package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quizarena"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"SHUTDOWN_GRACE_MS" envDefault:"5s"`

	Postgres Postgres
	Redis    Redis
	Security Security
	Game     Game
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Redis holds cache configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores secrets for signing and auth.
type Security struct {
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
}

// Game groups the match engine knobs.
type Game struct {
	QuestionDurationSec    int           `env:"QUESTION_DURATION_SECONDS" envDefault:"20"`
	AutoAdvanceDelaySec    int           `env:"AUTO_ADVANCE_DELAY_SECONDS" envDefault:"3"`
	MaxQuestionsPerMatch   int           `env:"MAX_QUESTIONS_PER_MATCH" envDefault:"50"`
	BroadcastQueueCap      int           `env:"BROADCAST_QUEUE_CAP" envDefault:"256"`
	SettlementRetries      int           `env:"SETTLEMENT_RETRIES" envDefault:"5"`
	ExecutorAcquireTimeout time.Duration `env:"EXECUTOR_ACQUIRE_TIMEOUT_MS" envDefault:"2s"`
	QuestionFetchTimeout   time.Duration `env:"QUESTION_FETCH_TIMEOUT_SECONDS" envDefault:"4s"`
}

// Load parses environment variables into App config.
func Load() (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
