package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the resolved process configuration.
type Config struct {
	Core     Core
	Paths    PathsConfig
	Server   Server
	Store    StoreConfig
	GitSync  GitSyncConfig
	Backup   BackupConfig
	Warnings []string
}

// Core holds settings shared by every command.
type Core struct {
	Debug     bool
	LogFormat string // "text" or "json"
	// EncryptionKey is the passphrase for remote and backup content.
	// Empty means crypto.ResolveKey decides.
	EncryptionKey string
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	DataDir        string
	StoreDir       string // runtime license files
	LogFile        string // optional; empty logs to stderr only
	ConfigFileUsed string
}

// Server holds the HTTP boundary settings.
type Server struct {
	Host          string
	Port          int
	AdminKey      string
	WebhookSecret string
}

// Store layouts.
const (
	LayoutMap  = "map"
	LayoutList = "list"
)

// StoreConfig holds Record Store settings.
type StoreConfig struct {
	Layout            string
	DefaultCollection string
	// PerProduct files records under one collection per product id.
	PerProduct bool
	CacheTTL   time.Duration
}

// GitSyncConfig holds configuration for the remote repository mirror.
type GitSyncConfig struct {
	Enabled     bool
	Repository  string // https URL, ssh URL or scp-like git@host:org/repo
	Branch      string
	Path        string // Subdirectory inside the repository holding encrypted files
	Auth        GitSyncAuthConfig
	AutoSync    GitSyncAutoSyncConfig
	PushEnabled bool
	Commit      GitSyncCommitConfig
	Retry       RetryConfig
}

// GitSyncAuthConfig holds authentication configuration for Git operations.
type GitSyncAuthConfig struct {
	Type                  string // "token", "ssh" or "none"
	Token                 string
	Username              string // Default: x-access-token
	SSHKey                string // inline private key
	SSHKeyPath            string
	SSHPassphrase         string
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
}

// GitSyncAutoSyncConfig holds configuration for automatic synchronization.
type GitSyncAutoSyncConfig struct {
	Enabled   bool
	OnStartup bool
	Interval  int    // Seconds; 0 disables periodic sync
	Schedule  string // cron expression; overrides Interval when set
	Watch     bool   // push when store files change outside the service
	Debounce  time.Duration
}

// GitSyncCommitConfig holds configuration for Git commits.
type GitSyncCommitConfig struct {
	AuthorName  string
	AuthorEmail string
}

// RetryConfig bounds remote operations.
type RetryConfig struct {
	InitialInterval time.Duration
	Factor          float64
	MaxInterval     time.Duration
	MaxAttempts     int
}

// BackupConfig holds the S3-compatible backup channel settings.
type BackupConfig struct {
	Enabled     bool
	Endpoint    string
	Bucket      string
	Prefix      string
	Region      string
	AccessKey   string
	SecretKey   string
	UseSSL      bool
	OnPush      bool
	Concurrency int
}

var (
	ErrInvalidLayout   = errors.New("store.layout must be map or list")
	ErrMissingRepo     = errors.New("gitSync.repository is required when git sync is enabled")
	ErrMissingBucket   = errors.New("backup.bucket is required when backup is enabled")
	ErrInvalidAuthType = errors.New("gitSync.auth.type must be token, ssh or none")
)

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Store.Layout != LayoutMap && c.Store.Layout != LayoutList {
		return fmt.Errorf("%w: %q", ErrInvalidLayout, c.Store.Layout)
	}
	if c.GitSync.Enabled {
		if c.GitSync.Repository == "" {
			return ErrMissingRepo
		}
		switch c.GitSync.Auth.Type {
		case "token", "ssh", "none":
		default:
			return fmt.Errorf("%w: %q", ErrInvalidAuthType, c.GitSync.Auth.Type)
		}
		if s := c.GitSync.AutoSync.Schedule; s != "" {
			if _, err := cron.ParseStandard(s); err != nil {
				return fmt.Errorf("invalid gitSync.autoSync.schedule %q: %w", s, err)
			}
		}
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}

// SecretValues returns configured credentials for log masking.
func (c *Config) SecretValues() []string {
	return []string{
		c.Core.EncryptionKey,
		c.Server.AdminKey,
		c.Server.WebhookSecret,
		c.GitSync.Auth.Token,
		c.GitSync.Auth.SSHPassphrase,
		c.Backup.AccessKey,
		c.Backup.SecretKey,
	}
}
