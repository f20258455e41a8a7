package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/audiencelab/scrapewatch/config"
	"github.com/audiencelab/scrapewatch/internal/bootstrap"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultCommandTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrateCommand,
		},
		"sync": {
			name:        "sync",
			description: "Sync a single run from the platform, reconciling its dataset if complete",
			run:         runSyncCommand,
		},
		"abort": {
			name:        "abort",
			description: "Relay an abort request for a run to the platform",
			run:         runAbortCommand,
		},
		"reset-recovery": {
			name:        "reset-recovery",
			description: "Reset a run's resurrect counter so auto-recovery may retry it",
			run:         runResetRecoveryCommand,
		},
		"summary": {
			name:        "summary",
			description: "Print per-status run counts",
			run:         runSummaryCommand,
		},
		"members": {
			name:        "members",
			description: "Print the audience member count for one scrape source",
			run:         runMembersCommand,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: scrapewatch-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func runMigrateCommand(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "migration timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true})
	if err != nil {
		return err
	}
	defer infra.Close(cmdCtx.Logger)

	return bootstrap.RunMigrations(ctx, infra.DB, cmdCtx.Logger)
}

func runSyncCommand(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	runID := fs.String("run-id", "", "internal run id to sync")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("--run-id is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true, WantRedis: true})
	if err != nil {
		return err
	}
	defer infra.Close(cmdCtx.Logger)

	services, err := buildServices(cmdCtx, infra)
	if err != nil {
		return err
	}

	result, err := services.Monitor.SyncRun(ctx, *runID)
	if err != nil {
		return fmt.Errorf("sync run: %w", err)
	}

	return printJSON(result)
}

func runAbortCommand(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("abort", flag.ContinueOnError)
	runID := fs.String("run-id", "", "internal run id to abort")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("--run-id is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true})
	if err != nil {
		return err
	}
	defer infra.Close(cmdCtx.Logger)

	services, err := buildServices(cmdCtx, infra)
	if err != nil {
		return err
	}

	result, err := services.Monitor.AbortRun(ctx, *runID)
	if err != nil {
		return fmt.Errorf("abort run: %w", err)
	}

	return printJSON(result)
}

func runResetRecoveryCommand(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reset-recovery", flag.ContinueOnError)
	runID := fs.String("run-id", "", "internal run id to reset")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("--run-id is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true})
	if err != nil {
		return err
	}
	defer infra.Close(cmdCtx.Logger)

	services, err := buildServices(cmdCtx, infra)
	if err != nil {
		return err
	}

	if err := services.Monitor.ResetRecovery(ctx, *runID); err != nil {
		return fmt.Errorf("reset recovery: %w", err)
	}

	return writef(os.Stdout, "resurrect counter reset for run %s\n", *runID)
}

func runSummaryCommand(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	rawJSON := fs.Bool("json", false, "print summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true, WantRedis: true})
	if err != nil {
		return err
	}
	defer infra.Close(cmdCtx.Logger)

	services, err := buildServices(cmdCtx, infra)
	if err != nil {
		return err
	}

	summary, err := services.Monitor.RunsSummary(ctx)
	if err != nil {
		return fmt.Errorf("runs summary: %w", err)
	}

	if *rawJSON {
		return printJSON(summary)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		count int
	}{
		{"pending", summary.Pending},
		{"running", summary.Running},
		{"succeeded", summary.Succeeded},
		{"failed", summary.Failed},
		{"timed_out", summary.TimedOut},
		{"aborted", summary.Aborted},
	}
	for _, row := range rows {
		if err := writef(w, "%s\t%d\n", row.label, row.count); err != nil {
			return err
		}
	}
	if err := writef(w, "total\t%d\n", summary.Total()); err != nil {
		return err
	}
	return w.Flush()
}

func runMembersCommand(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("members", flag.ContinueOnError)
	producer := fs.String("producer", "", "producer kind (telegram, instagram, twitter, generic)")
	source := fs.String("source", "", "source identifier (target URL or external job id)")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *producer == "" || *source == "" {
		return fmt.Errorf("--producer and --source are required")
	}
	kind := model.ProducerKind(*producer)
	if !kind.Valid() {
		return fmt.Errorf("unknown producer kind %q", *producer)
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true})
	if err != nil {
		return err
	}
	defer infra.Close(cmdCtx.Logger)

	services, err := buildServices(cmdCtx, infra)
	if err != nil {
		return err
	}

	count, err := services.Members.CountBySource(ctx, kind, *source)
	if err != nil {
		return fmt.Errorf("count members: %w", err)
	}

	return writef(os.Stdout, "%d members recorded for %s source %s\n", count, kind, *source)
}

func buildServices(cmdCtx *commandContext, infra *infraHandles) (*bootstrap.ServiceContainer, error) {
	return bootstrap.BuildServices(bootstrap.ServiceDeps{
		Config:      &cmdCtx.Config,
		DB:          infra.DB,
		RedisClient: infra.Redis,
		Logger:      cmdCtx.Logger,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
