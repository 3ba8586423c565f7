package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/milalabs/licsync/internal/gitsync"
)

// Sync creates the sync command group.
func Sync() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize licenses with the remote repository",
		Long: `Pull, push and inspect the encrypted mirror of the license store.

Pull overwrites local collections with the remote ones. Push encrypts every
local collection and commits it; when the remote moved ahead the remote
records are merged in first.
`,
	}
	cmd.AddCommand(syncPull(), syncPush(), syncStatus())
	return cmd
}

func syncPull() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "pull",
			Short: "Restore local collections from the remote",
			Args:  cobra.NoArgs,
		},
		nil,
		func(ctx *Context, _ []string) error {
			return runSyncOnce(ctx, gitsync.Service.Pull)
		},
	)
}

func syncPush() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "push",
			Short: "Encrypt local collections and push them",
			Args:  cobra.NoArgs,
		},
		nil,
		func(ctx *Context, _ []string) error {
			return runSyncOnce(ctx, gitsync.Service.Push)
		},
	)
}

func runSyncOnce(ctx *Context, op func(gitsync.Service, context.Context) (*gitsync.SyncResult, error)) error {
	svc, err := ctx.NewSyncService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	result, err := op(svc, ctx.Context)
	printSyncResult(ctx.Command.OutOrStdout(), result)
	return err
}

func syncStatus() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show sync configuration and test the remote",
			Args:  cobra.NoArgs,
		},
		nil,
		runSyncStatus,
	)
}

func runSyncStatus(ctx *Context, _ []string) error {
	svc, err := ctx.NewSyncService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	state, err := svc.GetStatus(ctx.Context)
	if err != nil {
		return err
	}
	conn, err := svc.TestConnection(ctx.Context)
	if err != nil {
		return err
	}

	w := ctx.Command.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Repository: %s\n", state.Repository)
	_, _ = fmt.Fprintf(w, "Branch:     %s\n", state.Branch)
	_, _ = fmt.Fprintf(w, "Push:       %t\n", ctx.Config.GitSync.PushEnabled)
	if conn.Success {
		_, _ = fmt.Fprintf(w, "Remote:     %s\n", conn.Message)
		return nil
	}
	_, _ = fmt.Fprintf(w, "Remote:     %s\n", conn.Error)
	return fmt.Errorf("remote is not reachable")
}

func printSyncResult(w io.Writer, r *gitsync.SyncResult) {
	if r == nil {
		return
	}
	state, attr := "ok", color.FgGreen
	switch {
	case r.Skipped:
		state, attr = "skipped", color.FgYellow
	case !r.Success:
		state, attr = "failed", color.FgRed
	}
	c := color.New(attr)
	if isTerminal(w) {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	_, _ = fmt.Fprintf(w, "%s %s: %s (%s)\n", r.Direction, c.Sprint(state), r.Message, r.Duration.Round(time.Millisecond))
	if len(r.Synced) > 0 {
		_, _ = fmt.Fprintf(w, "  collections: %s\n", strings.Join(r.Synced, ", "))
	}
	if r.Commit != "" {
		_, _ = fmt.Fprintf(w, "  commit: %s\n", r.Commit)
	}
	for _, e := range r.Errors {
		if e.Collection != "" {
			_, _ = fmt.Fprintf(w, "  error [%s]: %s\n", e.Collection, e.Message)
			continue
		}
		_, _ = fmt.Fprintf(w, "  error: %s\n", e.Message)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
