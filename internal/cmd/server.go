package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/milalabs/licsync/internal/backup"
	"github.com/milalabs/licsync/internal/cmn/config"
	"github.com/milalabs/licsync/internal/gitsync"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
	"github.com/milalabs/licsync/internal/metrics"
	"github.com/milalabs/licsync/internal/service/frontend"
)

// Server creates the command that runs the HTTP server with sync and
// backup.
func Server() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "server [flags]",
			Short: "Start the license server",
			Long: `Start the license HTTP server.

When git sync is enabled the local store is restored from the remote before
the server accepts requests, every change is pushed in the background, and
a timer keeps the two in step.

Example:
  licsync server --host=0.0.0.0 --port=10000
`,
			Args: cobra.NoArgs,
		},
		serverFlags,
		runServer,
	)
}

var serverFlags = []commandLineFlag{hostFlag, portFlag}

func runServer(ctx *Context, _ []string) error {
	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	opts := []frontend.Option{
		frontend.WithRegistry(registry),
		frontend.WithLogFormat(ctx.Config.Core.LogFormat),
	}

	var bk *backup.Channel
	if ctx.Config.Backup.Enabled {
		var err error
		bk, err = ctx.NewBackup()
		if err != nil {
			return fmt.Errorf("failed to set up backup: %w", err)
		}
		bk.OnResult(m.ObserveBackup)
		defer bk.Wait()
		opts = append(opts, frontend.WithBackuper(bk))
	}

	var svc gitsync.Service
	if ctx.Config.GitSync.Enabled {
		syncOpts := []gitsync.Option{gitsync.WithObserver(m.ObserveSync)}
		if bk != nil && ctx.Config.Backup.OnPush {
			syncOpts = append(syncOpts, gitsync.WithAfterPush(func(ctx context.Context, _ *gitsync.SyncResult) {
				bk.Dispatch(ctx, backup.OpUpload)
			}))
		}
		var err error
		svc, err = ctx.NewSyncService(syncOpts...)
		if err != nil {
			return err
		}
		ctx.Licenses.OnClear(svc.NotifyClear)
		ctx.Licenses.OnMutation(svc.NotifyMutation)

		if err := svc.Start(sigCtx); err != nil {
			return fmt.Errorf("failed to start git sync: %w", err)
		}
		defer func() {
			if err := svc.Stop(); err != nil {
				logger.Warn(ctx.Context, "Failed to stop git sync", tag.Error(err))
			}
		}()
		opts = append(opts, frontend.WithSyncer(svc))
	} else if bk != nil {
		// Without git the bucket is the only remote copy to restore from.
		if _, err := bk.DownloadAll(sigCtx); err != nil {
			logger.Warn(ctx.Context, "Startup restore from backup failed", tag.Error(err))
		}
		ctx.Licenses.OnMutation(func(ctx context.Context, _ string) {
			bk.Dispatch(ctx, backup.OpUpload)
		})
	}

	var status metrics.StatusSource
	if svc != nil {
		status = svc
	}
	registry.MustRegister(metrics.NewCollector(config.Version, status, ctx.Licenses, ctx.Cache))

	srv := frontend.NewServer(ctx.Config.Server, ctx.Licenses, opts...)
	return srv.Serve(sigCtx)
}
