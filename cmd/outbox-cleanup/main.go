// Command outbox-cleanup removes expired records from a MySQL outbox table.
//
// It runs outbox retention for cron jobs and CronJobs when the application itself
// should not run DELETE statements. Instances coordinate through GET_LOCK so only
// one purges at a time.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"

	outbox "github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/mysql"
	"github.com/velmie/txoutbox/zaplog"
)

const exitUsage = 2

type options struct {
	dsn         string
	table       string
	lifetime    time.Duration
	checkEvery  time.Duration
	deleteBatch int
	lockName    string
	once        bool
	verbose     bool
}

func main() {
	var opts options

	flag.StringVar(&opts.dsn, "dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true")
	flag.StringVar(&opts.table, "table", "outbox_message", "Outbox table name")
	flag.DurationVar(&opts.lifetime, "lifetime", 7*24*time.Hour, "Delete records created longer ago than this")
	flag.DurationVar(&opts.checkEvery, "check-every", time.Hour, "How often to run cleanup")
	flag.IntVar(&opts.deleteBatch, "delete-batch", 0, "Rows deleted per statement (0 uses default)")
	flag.StringVar(&opts.lockName, "lock-name", "outbox:retention", "Advisory lock name")
	flag.BoolVar(&opts.once, "once", false, "Run once and exit")
	flag.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if opts.dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	logger, zl, err := zaplog.NewProduction(opts.verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("outbox cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger outbox.Logger) error {
	db, err := sql.Open("mysql", opts.dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	store, err := mysql.NewStore(db,
		mysql.WithTable(opts.table),
		mysql.WithDeleteBatch(opts.deleteBatch),
		mysql.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	retention := outbox.NewRetention(store,
		outbox.WithLogger(logger),
		outbox.WithLifetime(opts.lifetime),
		outbox.WithRetentionInterval(opts.checkEvery),
		outbox.WithLockName(opts.lockName),
	)

	if opts.once {
		purged, err := retention.Purge(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		logger.Info("cleanup done", "purged", purged)

		return nil
	}

	if err := retention.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run retention: %w", err)
	}

	return nil
}
