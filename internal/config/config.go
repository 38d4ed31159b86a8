package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port                 int
	DBDriver             string
	DBDSN                string
	JWTSecret            string
	SecretKeyFile        string
	RedisURL             string
	SeedDemoData         bool
	WSInsecureSkipVerify bool
}

func Load() Config {
	port := 8084
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" && driver == "sqlite" {
		dsn = "chat.db"
	}

	keyFile := os.Getenv("SECRET_KEY_FILE")
	if keyFile == "" {
		keyFile = "secret.key"
	}

	return Config{
		Port:                 port,
		DBDriver:             driver,
		DBDSN:                dsn,
		JWTSecret:            os.Getenv("JWT_SECRET"),
		SecretKeyFile:        keyFile,
		RedisURL:             os.Getenv("REDIS_URL"),
		SeedDemoData:         os.Getenv("SEED_DEMO_DATA") == "true",
		WSInsecureSkipVerify: os.Getenv("WS_INSECURE_SKIP_VERIFY") == "true",
	}
}
