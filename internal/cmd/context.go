package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/milalabs/licsync/internal/backup"
	"github.com/milalabs/licsync/internal/cmn/config"
	"github.com/milalabs/licsync/internal/cmn/crypto"
	"github.com/milalabs/licsync/internal/cmn/fileutil"
	"github.com/milalabs/licsync/internal/cmn/masking"
	"github.com/milalabs/licsync/internal/gitsync"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
	"github.com/milalabs/licsync/internal/persis/filelicense"
)

const collectionCacheSize = 256

// Context holds the configuration and stores for a command.
type Context struct {
	context.Context

	Command  *cobra.Command
	Config   *config.Config
	Quiet    bool
	Cache    *fileutil.Cache[license.Collection]
	Store    *filelicense.Store
	Licenses *license.Manager

	cipher  *crypto.Encryptor
	cleanup []func() error
}

// NewContext loads configuration, sets up logging and opens the record
// store.
func NewContext(cmd *cobra.Command, flags []commandLineFlag) (*Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v := viper.New()
	if err := bindFlags(v, cmd, flags...); err != nil {
		return nil, err
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	var loaderOpts []config.ConfigLoaderOption
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgPath))
	}
	cfg, err := config.NewConfigLoader(v, loaderOpts...).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	c := &Context{Context: ctx, Command: cmd, Config: cfg, Quiet: quiet}
	if err := c.setupLogger(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn(c.Context, w)
	}

	c.Cache = fileutil.NewCache[license.Collection]("collections", collectionCacheSize, cfg.Store.CacheTTL)
	c.Store = filelicense.New(cfg.Paths.StoreDir,
		filelicense.WithLayout(cfg.Store.Layout),
		filelicense.WithFileCache(c.Cache),
	)
	c.Licenses = license.NewManager(c.Store,
		license.WithDefaultCollection(cfg.Store.DefaultCollection),
		license.WithPerProduct(cfg.Store.PerProduct),
	)
	return c, nil
}

// setupLogger routes every log line through a masking writer so
// configured credentials never reach stderr or the log file.
func (c *Context) setupLogger() error {
	var out io.Writer
	if !c.Quiet {
		out = os.Stderr
	}
	if path := c.Config.Paths.LogFile; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // path comes from configuration
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		c.cleanup = append(c.cleanup, f.Close)
		if out != nil {
			out = io.MultiWriter(out, f)
		} else {
			out = f
		}
	}

	opts := []logger.Option{logger.WithQuiet()}
	if c.Config.Core.Debug || os.Getenv("DEBUG") != "" {
		opts = append(opts, logger.WithDebug())
	}
	if c.Config.Core.LogFormat != "" {
		opts = append(opts, logger.WithFormat(c.Config.Core.LogFormat))
	}
	if out != nil {
		w := masking.NewMaskingWriter(out, masking.NewMasker(c.Config.SecretValues()...))
		// Flush before the file is closed.
		c.cleanup = append([]func() error{w.Flush}, c.cleanup...)
		opts = append(opts, logger.WithWriter(w))
	}
	c.Context = logger.WithLogger(c.Context, logger.NewLogger(opts...))
	return nil
}

// Close flushes logs and releases files.
func (c *Context) Close() {
	for _, fn := range c.cleanup {
		_ = fn()
	}
	c.cleanup = nil
}

// Cipher returns the encryptor for remote and backup content.
func (c *Context) Cipher() (*crypto.Encryptor, error) {
	if c.cipher != nil {
		return c.cipher, nil
	}
	key := c.Config.Core.EncryptionKey
	if key == "" {
		var err error
		key, err = crypto.ResolveKey(c.Config.Paths.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve encryption key: %w", err)
		}
	}
	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		return nil, err
	}
	c.cipher = enc
	return enc, nil
}

// NewSyncService creates the git sync engine over the record store.
func (c *Context) NewSyncService(opts ...gitsync.Option) (gitsync.Service, error) {
	if !c.Config.GitSync.Enabled {
		return nil, gitsync.ErrNotEnabled
	}
	enc, err := c.Cipher()
	if err != nil {
		return nil, err
	}
	if c.Config.Core.Debug {
		opts = append(opts, gitsync.WithGitClientOptions(gitsync.WithProgress(os.Stderr)))
	}
	cfg := gitsync.NewConfigFromGlobal(c.Config.GitSync)
	logger.Debug(c.Context, "Git sync configured",
		tag.Remote(masking.MaskURL(cfg.Repository)),
		tag.Branch(cfg.Branch),
	)
	return gitsync.NewService(cfg, c.Config.Paths.DataDir, c.Store, enc, opts...), nil
}

// NewBackup creates the backup channel.
func (c *Context) NewBackup() (*backup.Channel, error) {
	enc, err := c.Cipher()
	if err != nil {
		return nil, err
	}
	return backup.New(c.Config.Backup, c.Store, enc)
}

// NewCommand wires flags, context setup and teardown around runFunc.
func NewCommand(cmd *cobra.Command, flags []commandLineFlag, runFunc func(ctx *Context, args []string) error) *cobra.Command {
	initFlags(cmd, flags...)
	cmd.SilenceUsage = true

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := NewContext(cmd, flags)
		if err != nil {
			return fmt.Errorf("initialization error: %w", err)
		}
		defer ctx.Close()

		if err := runFunc(ctx, args); err != nil {
			logger.Error(ctx.Context, "Command failed", tag.Error(err))
			return err
		}
		return nil
	}

	return cmd
}
