package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/logger"
)

// migrateLogger forwards golang-migrate's progress lines to zerolog.
type migrateLogger struct {
	log     zerolog.Logger
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Info().Msgf(format, v...)
}

func (l migrateLogger) Verbose() bool { return l.verbose }

func main() {
	var (
		migrationDir string
		verbose      bool
	)
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.BoolVar(&verbose, "v", false, "Log every applied migration")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed to initialize")
	}
	defer m.Close()
	m.Log = migrateLogger{log: log, verbose: verbose}

	switch command := args[0]; command {
	case "up":
		report(log, "up", m.Up())
	case "down":
		report(log, "down", m.Down())
	case "steps":
		n := intArg(log, args, "steps requires a signed step count")
		report(log, "steps", m.Steps(n))
	case "goto":
		v := intArg(log, args, "goto requires a version")
		report(log, "goto", m.Migrate(uint(v)))
	case "force":
		v := intArg(log, args, "force requires a version")
		if err := m.Force(v); err != nil {
			log.Fatal().Err(err).Msg("Force failed")
		}
		log.Info().Int("version", v).Msg("Forced version")
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No migrations applied")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Version failed")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current version")
	default:
		printUsage()
		os.Exit(2)
	}
}

func report(log zerolog.Logger, op string, err error) {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info().Str("op", op).Msg("Already up to date")
	case err != nil:
		log.Fatal().Err(err).Str("op", op).Msg("Migration failed")
	default:
		log.Info().Str("op", op).Msg("Migration applied")
	}
}

func intArg(log zerolog.Logger, args []string, usage string) int {
	if len(args) < 2 {
		log.Fatal().Msg(usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatal().Err(err).Str("arg", args[1]).Msg("Invalid number")
	}
	return n
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, steps <n>, goto <version>, force <version>, version")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
