package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	GinMode  string

	DBDriver string // mysql | sqlite
	DBDSN    string

	JWTSecret string
	JWTTTL    time.Duration

	// redis backplane, disabled when RedisAddr is empty
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannelPrefix string

	// rabbitMQ offline notices, disabled when RabbitURL is empty
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	TypingTimeout       time.Duration
	TypingSweepInterval time.Duration
	RecentConversations int

	WSAllowedOrigins     []string
	WSInsecureSkipVerify bool

	LogLevel  string
	LogFormat string
}

func Load() Config {
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/presence_hub?charset=utf8mb4&parseTime=true&loc=UTC
	driver := strings.ToLower(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "mysql"
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		if driver == "sqlite" {
			dsn = "file:presence_hub.db?_pragma=busy_timeout(5000)"
		} else {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
				"app", "apppass", "127.0.0.1", "3306", "presence_hub",
			)
		}
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "offline_notices"
	}

	prefix := os.Getenv("REDIS_CHANNEL_PREFIX")
	if prefix == "" {
		prefix = "presence-hub:room:"
	}

	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	if logFormat == "" {
		logFormat = "text"
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("WS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		HTTPAddr: httpAddr,
		GinMode:  os.Getenv("GIN_MODE"),

		DBDriver: driver,
		DBDSN:    dsn,

		JWTSecret: secret,
		JWTTTL:    envDuration("JWT_TTL", 24*time.Hour),

		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envInt("REDIS_DB", 0),
		RedisChannelPrefix: prefix,

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       rabbitQueue,
		WorkerConcurrency: clamp(envInt("WORKER_CONCURRENCY", 2), 1, 50),

		TypingTimeout:       envDuration("TYPING_TIMEOUT", 10*time.Second),
		TypingSweepInterval: envDuration("TYPING_SWEEP_INTERVAL", 2*time.Second),
		RecentConversations: clamp(envInt("RECENT_CONVERSATIONS", 20), 1, 200),

		WSAllowedOrigins:     origins,
		WSInsecureSkipVerify: envBool("WS_INSECURE_SKIP_VERIFY", false),

		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: logFormat,
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDuration accepts Go durations ("10s") or plain seconds ("10").
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
