package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/costgov/backend/internal/infrastructure/config"
	"github.com/costgov/backend/internal/infrastructure/logger"
	"github.com/costgov/backend/internal/infrastructure/migration"
	"github.com/costgov/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// dbCommand runs against a live database
type dbCommand struct {
	args int
	run  func(m *migration.Migrator, args []string, log *zap.Logger) error
}

var dbCommands = map[string]dbCommand{
	"up": {run: func(m *migration.Migrator, _ []string, _ *zap.Logger) error {
		return m.Up()
	}},
	"down": {run: func(m *migration.Migrator, _ []string, _ *zap.Logger) error {
		return m.Down()
	}},
	"step": {args: 1, run: func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	}},
	"goto": {args: 1, run: func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(v))
	}},
	"force": {args: 1, run: func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(v)
	}},
	"version": {run: func(m *migration.Migrator, _ []string, log *zap.Logger) error {
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if v == 0 {
			log.Info("Schema has no migrations applied")
			return nil
		}
		log.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return nil
	}},
}

func main() {
	path := flag.String("path", "", "Read migrations from this directory instead of the embedded set")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	defer func() {
		_ = log.Sync()
	}()

	src := migration.Source{FS: migrations.FS}
	if *path != "" {
		abs, err := filepath.Abs(*path)
		if err != nil {
			log.Fatal("Invalid migrations path", zap.Error(err))
		}
		src.Path = abs
	}

	var err error
	switch name, rest := args[0], args[1:]; name {
	case "create":
		err = create(src, rest, log)
	case "list":
		err = list(src)
	default:
		cmd, ok := dbCommands[name]
		if !ok {
			log.Error("Unknown command", zap.String("command", name))
			printUsage()
			os.Exit(1)
		}
		if len(rest) < cmd.args {
			log.Fatal("Missing argument", zap.String("command", name))
		}
		err = withMigrator(src, log, func(m *migration.Migrator) error {
			return cmd.run(m, rest, log)
		})
	}
	if err != nil {
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func withMigrator(src migration.Source, log *zap.Logger, fn func(*migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, src, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func create(src migration.Source, args []string, log *zap.Logger) error {
	if src.Path == "" {
		return errors.New("create writes files and needs -path")
	}
	if len(args) == 0 {
		return errors.New("migration name required")
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(src.Path, args[0], description)
	if err != nil {
		return err
	}
	log.Info("Created migration",
		zap.String("version", mf.Version),
		zap.String("up", mf.UpPath),
		zap.String("down", mf.DownPath),
	)
	return nil
}

func list(src migration.Source) error {
	var fsys fs.FS = migrations.FS
	if src.Path != "" {
		fsys = os.DirFS(src.Path)
	}
	names, err := migration.ListMigrations(fsys)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Cost governance schema migrations

Usage: migrate [-path dir] [-log-level level] <command> [args]

  up                    apply every pending migration
  down                  roll every migration back
  step <n>              move n migrations (negative rolls back)
  goto <version>        migrate up or down to version
  version               print the applied version
  force <version>       set the version without running SQL (clears dirty)
  create <name> [desc]  write an empty up/down pair into -path
  list                  print the migrations that would be applied

Migrations are embedded in the binary; -path reads them from disk instead.
Database settings come from config.toml and COSTGOV_DATABASE_* variables.
`)
}
