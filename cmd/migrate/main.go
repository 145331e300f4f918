package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joao-fontenele/storefront-checkout/internal/config"
)

const usage = "usage: migrate <up|down|steps N|version|force N>"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		logger.Error(usage)
		os.Exit(1)
	}

	if err := config.Load(); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	postgresURL, err := config.Require("POSTGRES_URL")
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	m, err := migrate.New(config.Get("MIGRATIONS_PATH", "file://migrations"), postgresURL)
	if err != nil {
		logger.Error("failed to create migrate instance", "error", err)
		os.Exit(1)
	}

	err = run(m, args, logger)
	if _, cerr := m.Close(); cerr != nil {
		logger.Warn("failed to close migrate instance", "error", cerr)
	}
	if err != nil {
		logger.Error("migrate failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, args []string, logger *slog.Logger) error {
	switch args[0] {
	case "up":
		return report(m.Up(), logger, "migrations applied")

	case "down":
		return report(m.Steps(-1), logger, "migration rolled back")

	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return report(m.Steps(n), logger, "migration steps applied", "steps", n)

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil

	// force clears the dirty flag after a failed migration was fixed by hand.
	case "force":
		version, err := intArg(args)
		if err != nil {
			return err
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("migration version forced", "version", version)
		return nil
	}
	return errors.New(usage)
}

func report(err error, logger *slog.Logger, msg string, attrs ...any) error {
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no change")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info(msg, attrs...)
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a number: %s", args[0], usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[1], err)
	}
	return n, nil
}
