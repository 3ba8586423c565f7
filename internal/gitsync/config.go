package gitsync

import (
	"fmt"
	"time"

	"github.com/milalabs/licsync/internal/cmn/backoff"
	"github.com/milalabs/licsync/internal/cmn/config"
)

// Config holds the configuration for Git sync functionality.
type Config struct {
	// Enabled indicates whether Git sync is enabled.
	Enabled bool

	// Repository is the Git repository URL.
	// Format: https://github.com/org/repo.git, git@github.com:org/repo.git or a local path.
	Repository string

	// Branch is the branch to sync with.
	Branch string

	// Path is the subdirectory within the repository holding the encrypted
	// collection files. Empty string means root directory.
	Path string

	// Auth contains authentication configuration.
	Auth AuthConfig

	// AutoSync contains auto-sync configuration.
	AutoSync AutoSyncConfig

	// PushEnabled indicates whether pushing changes is allowed.
	PushEnabled bool

	// Commit contains commit configuration.
	Commit CommitConfig

	// Retry bounds every remote operation.
	Retry backoff.Settings
}

// AuthConfig holds authentication configuration for Git operations.
type AuthConfig struct {
	// Type is the authentication type: "token", "ssh" or "none".
	Type string

	// Token is the personal access token for HTTPS authentication.
	Token string

	// Username is sent with the token. Defaults to x-access-token.
	Username string

	// SSHKey is an inline private key. It is written to the data directory
	// with owner-only permissions before use.
	SSHKey string

	// SSHKeyPath is the path to the SSH private key file.
	SSHKeyPath string

	// SSHPassphrase is the passphrase for the SSH key (optional).
	SSHPassphrase string

	// KnownHostsPath overrides the known_hosts files used to verify the server.
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool
}

// AutoSyncConfig holds configuration for automatic synchronization.
type AutoSyncConfig struct {
	// Enabled indicates whether auto-sync is enabled.
	Enabled bool

	// OnStartup indicates whether to pull on server startup.
	OnStartup bool

	// Interval is the sync interval in seconds.
	// 0 means auto-sync is disabled (pull on startup only).
	Interval int

	// Schedule is a cron expression that replaces Interval when set.
	Schedule string

	// Watch pushes when collection files change on disk.
	Watch bool

	// Debounce delays watcher pushes so bursts of writes become one cycle.
	Debounce time.Duration
}

// CommitConfig holds configuration for Git commits.
type CommitConfig struct {
	// AuthorName is the name to use for commits.
	// Defaults to "Licsync" if not specified.
	AuthorName string

	// AuthorEmail is the email to use for commits.
	// Defaults to "licsync@localhost" if not specified.
	AuthorEmail string
}

// AuthType constants for authentication types.
const (
	AuthTypeToken = "token"
	AuthTypeSSH   = "ssh"
	AuthTypeNone  = "none"
)

const defaultTokenUsername = "x-access-token"

// IsValid returns true if the configuration is valid for sync operations.
func (c *Config) IsValid() bool {
	return c.Enabled && c.Repository != "" && c.Branch != ""
}

// GetAuthorName returns the commit author name, using default if not set.
func (c *Config) GetAuthorName() string {
	if c.Commit.AuthorName != "" {
		return c.Commit.AuthorName
	}
	return "Licsync"
}

// GetAuthorEmail returns the commit author email, using default if not set.
func (c *Config) GetAuthorEmail() string {
	if c.Commit.AuthorEmail != "" {
		return c.Commit.AuthorEmail
	}
	return "licsync@localhost"
}

// CronSpec returns the schedule for timer passes, or "" when periodic sync
// is off.
func (c *Config) CronSpec() string {
	if !c.AutoSync.Enabled {
		return ""
	}
	if c.AutoSync.Schedule != "" {
		return c.AutoSync.Schedule
	}
	if c.AutoSync.Interval > 0 {
		return fmt.Sprintf("@every %ds", c.AutoSync.Interval)
	}
	return ""
}

// NewConfigFromGlobal creates a gitsync.Config from the global configuration.
func NewConfigFromGlobal(cfg config.GitSyncConfig) *Config {
	return &Config{
		Enabled:     cfg.Enabled,
		Repository:  cfg.Repository,
		Branch:      cfg.Branch,
		Path:        cfg.Path,
		PushEnabled: cfg.PushEnabled,
		Auth: AuthConfig{
			Type:                  cfg.Auth.Type,
			Token:                 cfg.Auth.Token,
			Username:              cfg.Auth.Username,
			SSHKey:                cfg.Auth.SSHKey,
			SSHKeyPath:            cfg.Auth.SSHKeyPath,
			SSHPassphrase:         cfg.Auth.SSHPassphrase,
			KnownHostsPath:        cfg.Auth.KnownHostsPath,
			InsecureIgnoreHostKey: cfg.Auth.InsecureIgnoreHostKey,
		},
		AutoSync: AutoSyncConfig{
			Enabled:   cfg.AutoSync.Enabled,
			OnStartup: cfg.AutoSync.OnStartup,
			Interval:  cfg.AutoSync.Interval,
			Schedule:  cfg.AutoSync.Schedule,
			Watch:     cfg.AutoSync.Watch,
			Debounce:  cfg.AutoSync.Debounce,
		},
		Commit: CommitConfig{
			AuthorName:  cfg.Commit.AuthorName,
			AuthorEmail: cfg.Commit.AuthorEmail,
		},
		Retry: backoff.Settings{
			InitialInterval: cfg.Retry.InitialInterval,
			Factor:          cfg.Retry.Factor,
			MaxInterval:     cfg.Retry.MaxInterval,
			MaxAttempts:     cfg.Retry.MaxAttempts,
		},
	}
}
