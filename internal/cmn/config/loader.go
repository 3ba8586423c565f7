package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigLoader reads and merges configuration from various sources.
type ConfigLoader struct {
	v          *viper.Viper
	configFile string
	appHomeDir string
	dotEnv     []string
	warnings   []string
}

// ConfigLoaderOption defines a functional option for configuring a ConfigLoader.
type ConfigLoaderOption func(*ConfigLoader)

// WithConfigFile sets the configuration file path.
func WithConfigFile(configFile string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.configFile = configFile
	}
}

// WithAppHomeDir places config and data under a single directory,
// overriding LICSYNC_HOME and the XDG locations.
func WithAppHomeDir(dir string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.appHomeDir = dir
	}
}

// WithDotEnv sets the .env files read before environment lookup.
// Variables already present in the environment win.
func WithDotEnv(files ...string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.dotEnv = files
	}
}

// NewConfigLoader creates a ConfigLoader with the given viper instance and options.
func NewConfigLoader(v *viper.Viper, options ...ConfigLoaderOption) *ConfigLoader {
	loader := &ConfigLoader{v: v, dotEnv: []string{".env"}}
	for _, opt := range options {
		opt(loader)
	}
	return loader
}

// Load reads configuration files, applies defaults and environment overrides,
// and returns a validated Config instance.
func (l *ConfigLoader) Load() (*Config, error) {
	if err := l.loadDotEnv(); err != nil {
		return nil, err
	}

	paths := l.resolvePaths()
	l.configureViper(paths.configDir)
	l.bindEnvironmentVariables()
	l.setViperDefaultValues(paths)

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(l.configFile == "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var def Definition
	if err := l.v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg := l.buildConfig(def)
	l.loadLegacyEnv(cfg)
	l.finalizePaths(cfg)
	cfg.Paths.ConfigFileUsed = l.v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Warnings = l.warnings
	return cfg, nil
}

func (l *ConfigLoader) loadDotEnv() error {
	for _, file := range l.dotEnv {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

type resolvedPaths struct {
	configDir string
	dataDir   string
}

func (l *ConfigLoader) resolvePaths() resolvedPaths {
	home := l.appHomeDir
	if home == "" {
		home = os.Getenv(strings.ToUpper(AppSlug) + "_HOME")
	}
	if home != "" {
		if abs, err := filepath.Abs(home); err == nil {
			home = abs
		}
		return resolvedPaths{configDir: home, dataDir: filepath.Join(home, "data")}
	}
	return resolvedPaths{
		configDir: filepath.Join(xdg.ConfigHome, AppSlug),
		dataDir:   filepath.Join(xdg.DataHome, AppSlug),
	}
}

func (l *ConfigLoader) configureViper(configDir string) {
	if l.configFile == "" {
		l.v.AddConfigPath(configDir)
		l.v.SetConfigName("config")
	} else {
		l.v.SetConfigFile(l.configFile)
	}
	l.v.SetConfigType("yaml")
	l.v.SetEnvPrefix(strings.ToUpper(AppSlug))
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
}

type envBinding struct {
	key    string
	env    string
	isPath bool
}

var envBindings = []envBinding{
	{key: "debug", env: "DEBUG"},
	{key: "logFormat", env: "LOG_FORMAT"},
	{key: "encryptionKey", env: "ENCRYPTION_KEY"},

	{key: "paths.dataDir", env: "DATA_DIR", isPath: true},
	{key: "paths.storeDir", env: "STORE_DIR", isPath: true},
	{key: "paths.logFile", env: "LOG_FILE", isPath: true},

	{key: "server.host", env: "HOST"},
	{key: "server.port", env: "PORT"},
	{key: "server.adminKey", env: "ADMIN_KEY"},
	{key: "server.webhookSecret", env: "WEBHOOK_SECRET"},

	{key: "store.layout", env: "STORE_LAYOUT"},
	{key: "store.defaultCollection", env: "STORE_DEFAULT_COLLECTION"},
	{key: "store.perProduct", env: "STORE_PER_PRODUCT"},
	{key: "store.cacheTTL", env: "STORE_CACHE_TTL"},

	{key: "gitSync.enabled", env: "GITSYNC_ENABLED"},
	{key: "gitSync.repository", env: "GITSYNC_REPOSITORY"},
	{key: "gitSync.branch", env: "GITSYNC_BRANCH"},
	{key: "gitSync.path", env: "GITSYNC_PATH"},
	{key: "gitSync.pushEnabled", env: "GITSYNC_PUSH_ENABLED"},
	{key: "gitSync.auth.type", env: "GITSYNC_AUTH_TYPE"},
	{key: "gitSync.auth.token", env: "GITSYNC_AUTH_TOKEN"},
	{key: "gitSync.auth.username", env: "GITSYNC_AUTH_USERNAME"},
	{key: "gitSync.auth.sshKey", env: "GITSYNC_AUTH_SSH_KEY"},
	{key: "gitSync.auth.sshKeyPath", env: "GITSYNC_AUTH_SSH_KEY_PATH", isPath: true},
	{key: "gitSync.auth.sshPassphrase", env: "GITSYNC_AUTH_SSH_PASSPHRASE"},
	{key: "gitSync.auth.knownHostsPath", env: "GITSYNC_AUTH_KNOWN_HOSTS_PATH", isPath: true},
	{key: "gitSync.auth.insecureIgnoreHostKey", env: "GITSYNC_AUTH_INSECURE_IGNORE_HOST_KEY"},
	{key: "gitSync.autoSync.enabled", env: "GITSYNC_AUTOSYNC_ENABLED"},
	{key: "gitSync.autoSync.onStartup", env: "GITSYNC_AUTOSYNC_ON_STARTUP"},
	{key: "gitSync.autoSync.interval", env: "GITSYNC_AUTOSYNC_INTERVAL"},
	{key: "gitSync.autoSync.schedule", env: "GITSYNC_AUTOSYNC_SCHEDULE"},
	{key: "gitSync.autoSync.watch", env: "GITSYNC_AUTOSYNC_WATCH"},
	{key: "gitSync.autoSync.debounce", env: "GITSYNC_AUTOSYNC_DEBOUNCE"},
	{key: "gitSync.commit.authorName", env: "GITSYNC_COMMIT_AUTHOR_NAME"},
	{key: "gitSync.commit.authorEmail", env: "GITSYNC_COMMIT_AUTHOR_EMAIL"},
	{key: "gitSync.retry.initialInterval", env: "GITSYNC_RETRY_INITIAL_INTERVAL"},
	{key: "gitSync.retry.factor", env: "GITSYNC_RETRY_FACTOR"},
	{key: "gitSync.retry.maxInterval", env: "GITSYNC_RETRY_MAX_INTERVAL"},
	{key: "gitSync.retry.maxAttempts", env: "GITSYNC_RETRY_MAX_ATTEMPTS"},

	{key: "backup.enabled", env: "BACKUP_ENABLED"},
	{key: "backup.endpoint", env: "BACKUP_ENDPOINT"},
	{key: "backup.bucket", env: "BACKUP_BUCKET"},
	{key: "backup.prefix", env: "BACKUP_PREFIX"},
	{key: "backup.region", env: "BACKUP_REGION"},
	{key: "backup.accessKey", env: "BACKUP_ACCESS_KEY"},
	{key: "backup.secretKey", env: "BACKUP_SECRET_KEY"},
	{key: "backup.useSSL", env: "BACKUP_USE_SSL"},
	{key: "backup.onPush", env: "BACKUP_ON_PUSH"},
	{key: "backup.concurrency", env: "BACKUP_CONCURRENCY"},
}

func (l *ConfigLoader) bindEnvironmentVariables() {
	prefix := strings.ToUpper(AppSlug) + "_"

	for _, b := range envBindings {
		fullEnv := prefix + b.env

		if b.isPath {
			if val := os.Getenv(fullEnv); val != "" {
				if abs, err := filepath.Abs(val); err == nil && abs != val {
					_ = os.Setenv(fullEnv, abs)
				}
			}
		}

		_ = l.v.BindEnv(b.key, fullEnv)
	}
}

func (l *ConfigLoader) setViperDefaultValues(paths resolvedPaths) {
	l.v.SetDefault("debug", false)
	l.v.SetDefault("logFormat", "text")

	l.v.SetDefault("paths.dataDir", paths.dataDir)

	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 10000)

	l.v.SetDefault("store.layout", LayoutMap)
	l.v.SetDefault("store.defaultCollection", "licenses")
	l.v.SetDefault("store.perProduct", false)
	l.v.SetDefault("store.cacheTTL", "5m")

	l.v.SetDefault("gitSync.enabled", false)
	l.v.SetDefault("gitSync.branch", "main")
	l.v.SetDefault("gitSync.path", "licenses")
	l.v.SetDefault("gitSync.pushEnabled", true)
	l.v.SetDefault("gitSync.auth.type", "token")
	l.v.SetDefault("gitSync.auth.username", "x-access-token")
	l.v.SetDefault("gitSync.auth.insecureIgnoreHostKey", false)
	l.v.SetDefault("gitSync.autoSync.enabled", true)
	l.v.SetDefault("gitSync.autoSync.onStartup", true)
	l.v.SetDefault("gitSync.autoSync.interval", 300)
	l.v.SetDefault("gitSync.autoSync.watch", true)
	l.v.SetDefault("gitSync.autoSync.debounce", "2s")
	l.v.SetDefault("gitSync.commit.authorName", AppName)
	l.v.SetDefault("gitSync.commit.authorEmail", AppSlug+"@localhost")
	l.v.SetDefault("gitSync.retry.initialInterval", "2s")
	l.v.SetDefault("gitSync.retry.factor", 2.0)
	l.v.SetDefault("gitSync.retry.maxInterval", "1m")
	l.v.SetDefault("gitSync.retry.maxAttempts", 3)

	l.v.SetDefault("backup.enabled", false)
	l.v.SetDefault("backup.prefix", "licenses")
	l.v.SetDefault("backup.useSSL", true)
	l.v.SetDefault("backup.onPush", true)
	l.v.SetDefault("backup.concurrency", 4)
}

func (l *ConfigLoader) buildConfig(def Definition) *Config {
	cfg := &Config{
		Core: Core{
			Debug:         def.Debug,
			LogFormat:     def.LogFormat,
			EncryptionKey: def.EncryptionKey,
		},
	}

	if def.Paths != nil {
		cfg.Paths.DataDir = def.Paths.DataDir
		cfg.Paths.StoreDir = def.Paths.StoreDir
		cfg.Paths.LogFile = def.Paths.LogFile
	}

	if def.Server != nil {
		cfg.Server = Server{
			Host:          def.Server.Host,
			Port:          def.Server.Port,
			AdminKey:      def.Server.AdminKey,
			WebhookSecret: def.Server.WebhookSecret,
		}
	}

	if def.Store != nil {
		cfg.Store.Layout = strings.ToLower(def.Store.Layout)
		cfg.Store.DefaultCollection = def.Store.DefaultCollection
		cfg.Store.PerProduct = boolValue(def.Store.PerProduct)
		cfg.Store.CacheTTL = l.parseDuration("store.cacheTTL", def.Store.CacheTTL)
	}

	l.loadGitSyncConfig(cfg, def)
	l.loadBackupConfig(cfg, def)
	return cfg
}

func (l *ConfigLoader) loadGitSyncConfig(cfg *Config, def Definition) {
	gs := def.GitSync
	if gs == nil {
		return
	}
	cfg.GitSync.Enabled = boolValue(gs.Enabled)
	cfg.GitSync.Repository = normalizeRepoURL(gs.Repository)
	cfg.GitSync.Branch = gs.Branch
	cfg.GitSync.Path = strings.Trim(gs.Path, "/")
	cfg.GitSync.PushEnabled = boolValue(gs.PushEnabled)

	if a := gs.Auth; a != nil {
		cfg.GitSync.Auth = GitSyncAuthConfig{
			Type:                  strings.ToLower(a.Type),
			Token:                 a.Token,
			Username:              a.Username,
			SSHKey:                a.SSHKey,
			SSHKeyPath:            a.SSHKeyPath,
			SSHPassphrase:         a.SSHPassphrase,
			KnownHostsPath:        a.KnownHostsPath,
			InsecureIgnoreHostKey: boolValue(a.InsecureIgnoreHostKey),
		}
	}

	if as := gs.AutoSync; as != nil {
		cfg.GitSync.AutoSync = GitSyncAutoSyncConfig{
			Enabled:   boolValue(as.Enabled),
			OnStartup: boolValue(as.OnStartup),
			Interval:  as.Interval,
			Schedule:  as.Schedule,
			Watch:     boolValue(as.Watch),
			Debounce:  l.parseDuration("gitSync.autoSync.debounce", as.Debounce),
		}
		if cfg.GitSync.AutoSync.Interval < 0 {
			l.warnings = append(l.warnings, fmt.Sprintf("Invalid gitSync.autoSync.interval value: %d", as.Interval))
			cfg.GitSync.AutoSync.Interval = 0
		}
	}

	if c := gs.Commit; c != nil {
		cfg.GitSync.Commit = GitSyncCommitConfig{AuthorName: c.AuthorName, AuthorEmail: c.AuthorEmail}
	}

	if r := gs.Retry; r != nil {
		cfg.GitSync.Retry = RetryConfig{
			InitialInterval: l.parseDuration("gitSync.retry.initialInterval", r.InitialInterval),
			Factor:          r.Factor,
			MaxInterval:     l.parseDuration("gitSync.retry.maxInterval", r.MaxInterval),
			MaxAttempts:     r.MaxAttempts,
		}
	}
}

func (l *ConfigLoader) loadBackupConfig(cfg *Config, def Definition) {
	b := def.Backup
	if b == nil {
		return
	}
	cfg.Backup = BackupConfig{
		Enabled:     boolValue(b.Enabled),
		Endpoint:    b.Endpoint,
		Bucket:      b.Bucket,
		Prefix:      strings.Trim(b.Prefix, "/"),
		Region:      b.Region,
		AccessKey:   b.AccessKey,
		SecretKey:   b.SecretKey,
		UseSSL:      boolValue(b.UseSSL),
		OnPush:      boolValue(b.OnPush),
		Concurrency: b.Concurrency,
	}
	if cfg.Backup.Concurrency <= 0 {
		cfg.Backup.Concurrency = 1
	}
}

// loadLegacyEnv honours the unprefixed variable names used by earlier
// deployments. A value is taken only when the current setting is empty.
func (l *ConfigLoader) loadLegacyEnv(cfg *Config) {
	type legacyEnvMapping struct {
		newKey string
		setter func(*Config, string)
	}

	legacyEnvs := []struct {
		oldKey string
		legacyEnvMapping
	}{
		{"ENCRYPTION_KEY", legacyEnvMapping{"LICSYNC_ENCRYPTION_KEY", func(c *Config, v string) {
			setIfEmpty(&c.Core.EncryptionKey, v)
		}}},
		{"GITHUB_REPO", legacyEnvMapping{"LICSYNC_GITSYNC_REPOSITORY", func(c *Config, v string) {
			if c.GitSync.Repository == "" {
				c.GitSync.Repository = normalizeRepoURL(v)
				c.GitSync.Enabled = true
			}
		}}},
		{"GIT_SSH_KEY", legacyEnvMapping{"LICSYNC_GITSYNC_AUTH_SSH_KEY", func(c *Config, v string) {
			if c.GitSync.Auth.SSHKey == "" && c.GitSync.Auth.SSHKeyPath == "" {
				c.GitSync.Auth.SSHKey = v
				c.GitSync.Auth.Type = "ssh"
			}
		}}},
		{"GITHUB_TOKEN", legacyEnvMapping{"LICSYNC_GITSYNC_AUTH_TOKEN", func(c *Config, v string) {
			setIfEmpty(&c.GitSync.Auth.Token, v)
		}}},
		{"ADMIN_KEY", legacyEnvMapping{"LICSYNC_ADMIN_KEY", func(c *Config, v string) {
			setIfEmpty(&c.Server.AdminKey, v)
		}}},
		{"PAYHIP_API_KEY", legacyEnvMapping{"LICSYNC_WEBHOOK_SECRET", func(c *Config, v string) {
			setIfEmpty(&c.Server.WebhookSecret, v)
		}}},
		{"PORT", legacyEnvMapping{"LICSYNC_PORT", func(c *Config, v string) {
			if os.Getenv("LICSYNC_PORT") != "" || l.v.InConfig("server.port") {
				return
			}
			if i, err := strconv.Atoi(v); err == nil {
				c.Server.Port = i
			}
		}}},
	}

	for _, e := range legacyEnvs {
		if value := os.Getenv(e.oldKey); value != "" {
			l.warnings = append(l.warnings, fmt.Sprintf("%s is deprecated. Use %s instead.", e.oldKey, e.newKey))
			e.setter(cfg, value)
		}
	}
}

func (l *ConfigLoader) finalizePaths(cfg *Config) {
	if abs, err := filepath.Abs(cfg.Paths.DataDir); err == nil {
		cfg.Paths.DataDir = abs
	}
	if cfg.Paths.StoreDir == "" {
		cfg.Paths.StoreDir = filepath.Join(cfg.Paths.DataDir, "licenses")
	}
}

// parseDuration parses a duration string, returning zero and adding a warning if invalid.
func (l *ConfigLoader) parseDuration(fieldName, value string) time.Duration {
	if value == "" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("Invalid %s value: %s", fieldName, value))
		return 0
	}
	return duration
}

// normalizeRepoURL expands the short github.com/org/repo and org/repo forms
// to an https clone URL. Full URLs and scp-like addresses are kept.
func normalizeRepoURL(repo string) string {
	repo = strings.TrimSpace(repo)
	switch {
	case repo == "":
		return ""
	case strings.Contains(repo, "://"), strings.HasPrefix(repo, "git@"), filepath.IsAbs(repo):
		return repo
	case strings.HasPrefix(repo, "github.com/"):
		return "https://" + strings.TrimSuffix(repo, ".git") + ".git"
	case strings.Count(repo, "/") == 1:
		return "https://github.com/" + strings.TrimSuffix(repo, ".git") + ".git"
	}
	return repo
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func setIfEmpty(target *string, value string) {
	if *target == "" {
		*target = value
	}
}
