package main

import (
	"errors"
	"flag"
	"net/url"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/lalith-99/convo/internal/config"
	"github.com/lalith-99/convo/internal/db"
	"github.com/lalith-99/convo/internal/observ"
	"go.uber.org/zap"
)

func main() {
	var (
		command     string
		databaseURL string
	)
	flag.StringVar(&command, "cmd", "up", "Migration command (up, down, version, force)")
	flag.StringVar(&databaseURL, "database-url", config.GetEnv("DATABASE_URL", ""), "Postgres URL, defaults to $DATABASE_URL")
	flag.Parse()

	logger, err := observ.NewLogger(config.GetEnv("ENV", "development"), config.GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if databaseURL == "" {
		logger.Fatal("no database url; set DATABASE_URL or -database-url")
	}
	logger.Info("running migrations",
		zap.String("cmd", command),
		zap.String("database", redact(databaseURL)),
	)

	m, err := db.NewMigrator(databaseURL)
	if err != nil {
		logger.Fatal("create migrator", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("migrate up failed", zap.Error(err))
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("migrate down failed", zap.Error(err))
		}
	case "version":
	case "force":
		if flag.NArg() < 1 {
			logger.Fatal("force needs a version argument")
		}
		v, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			logger.Fatal("invalid version", zap.String("arg", flag.Arg(0)))
		}
		if err := m.Force(v); err != nil {
			logger.Fatal("force failed", zap.Error(err))
		}
	default:
		logger.Fatal("unknown command, use up, down, version or force", zap.String("cmd", command))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal("read version", zap.Error(err))
	}
	logger.Info("migrations done", zap.Uint("version", version), zap.Bool("dirty", dirty))
}

// redact hides the password before the URL reaches the logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
