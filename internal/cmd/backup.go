package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/milalabs/licsync/internal/backup"
)

// Backup creates the backup command group.
func Backup() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy licenses to or from the backup bucket",
	}
	cmd.AddCommand(backupCommand(backup.OpUpload, "Encrypt and upload every collection"))
	cmd.AddCommand(backupCommand(backup.OpDownload, "Download every collection into the local store"))
	return cmd
}

func backupCommand(op backup.Operation, short string) *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   string(op),
			Short: short,
			Args:  cobra.NoArgs,
		},
		nil,
		func(ctx *Context, _ []string) error {
			ch, err := ctx.NewBackup()
			if err != nil {
				return err
			}
			run := ch.UploadAll
			if op == backup.OpDownload {
				run = ch.DownloadAll
			}
			result, err := run(ctx.Context)
			if result != nil {
				_, _ = fmt.Fprintf(ctx.Command.OutOrStdout(), "%s %s/%s: %d file(s) %s\n",
					result.Operation, result.Bucket, strings.Trim(result.Prefix, "/"),
					len(result.Files), strings.Join(result.Files, ", "))
			}
			return err
		},
	)
}
