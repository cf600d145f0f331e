package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/db"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/migrate"
)

// options carries the parsed flags shared by every command.
type options struct {
	dir      string
	name     string
	version  string
	embedded bool
}

type command struct {
	usage string
	// offline commands only touch the migrations directory.
	offline bool
	run     func(ctx context.Context, m *migrate.Migrator, opts options) ([]migrate.Result, error)
}

var commands = map[string]command{
	"up": {usage: "apply all pending migrations", run: func(ctx context.Context, m *migrate.Migrator, _ options) ([]migrate.Result, error) {
		return m.Up(ctx)
	}},
	"down": {usage: "roll back the latest migration", run: func(ctx context.Context, m *migrate.Migrator, _ options) ([]migrate.Result, error) {
		return m.Down(ctx)
	}},
	"status": {usage: "print applied and pending migrations", run: func(ctx context.Context, m *migrate.Migrator, _ options) ([]migrate.Result, error) {
		statuses, err := m.Status(ctx)
		if err != nil {
			return nil, err
		}
		printStatus(os.Stdout, statuses)
		return nil, nil
	}},
	"version": {usage: "migrate up or down to -version", run: func(ctx context.Context, m *migrate.Migrator, opts options) ([]migrate.Result, error) {
		if opts.version == "" {
			return nil, errors.New("missing -version")
		}
		return m.To(ctx, opts.version)
	}},
	"create": {usage: "scaffold a new SQL migration named -name (create_<table> scaffolds a table)", offline: true, run: func(_ context.Context, _ *migrate.Migrator, opts options) ([]migrate.Result, error) {
		if opts.name == "" {
			return nil, errors.New("missing -name")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return nil, err
		}
		fmt.Println("created", path)
		return nil, nil
	}},
	"validate": {usage: "check migration files are well formed", offline: true, run: func(_ context.Context, _ *migrate.Migrator, opts options) ([]migrate.Result, error) {
		if opts.embedded {
			return nil, migrate.ValidateFS(migrate.EmbeddedFS())
		}
		return nil, migrate.ValidateDir(opts.dir)
	}},
}

func printStatus(w io.Writer, statuses []migrate.Status) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		state, at := "pending", "-"
		if s.Applied {
			state, at = "applied", s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, state, at, s.Path)
	}
	_ = tw.Flush()
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(os.Stderr, "usage: migrate [flags] <command>")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", name, commands[name].usage)
	}
	flag.PrintDefaults()
}

func main() {
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name for create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for version")
	flag.BoolVar(&opts.embedded, "embedded", false, "use the migrations compiled into the binary")
	flag.Usage = usage
	flag.Parse()

	name := strings.TrimSpace(flag.Arg(0))
	if name == "" {
		name = "up"
	}
	cmd, ok := commands[name]
	if !ok {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Env:         cfg.App.Env,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"command":  name,
		"dir":      opts.dir,
		"embedded": opts.embedded,
	})

	if err := execute(ctx, cfg, logg, cmd, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration command finished")
}

func execute(ctx context.Context, cfg *config.Config, logg *logger.Logger, cmd command, opts options) error {
	if cmd.offline {
		_, err := cmd.run(ctx, nil, opts)
		return err
	}
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	var migrator *migrate.Migrator
	if opts.embedded {
		migrator, err = migrate.NewMigrator(sqlDB, migrate.EmbeddedFS())
	} else {
		migrator, err = migrate.NewDirMigrator(sqlDB, opts.dir)
	}
	if err != nil {
		return err
	}

	results, err := cmd.run(ctx, migrator, opts)
	for _, r := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     r.Version,
			"file":        r.Path,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		}), "migration applied")
	}
	return err
}
