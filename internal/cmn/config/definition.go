package config

// Definition mirrors the YAML configuration file.
type Definition struct {
	Debug         bool   `mapstructure:"debug"`
	LogFormat     string `mapstructure:"logFormat"`
	EncryptionKey string `mapstructure:"encryptionKey"`

	Paths   *PathsDef   `mapstructure:"paths"`
	Server  *ServerDef  `mapstructure:"server"`
	Store   *StoreDef   `mapstructure:"store"`
	GitSync *GitSyncDef `mapstructure:"gitSync"`
	Backup  *BackupDef  `mapstructure:"backup"`
}

type PathsDef struct {
	DataDir  string `mapstructure:"dataDir"`
	StoreDir string `mapstructure:"storeDir"`
	LogFile  string `mapstructure:"logFile"`
}

type ServerDef struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	AdminKey      string `mapstructure:"adminKey"`
	WebhookSecret string `mapstructure:"webhookSecret"`
}

type StoreDef struct {
	// Layout is "map" (one keyed object per file) or "list" (array of records).
	// Default: map
	// Env: LICSYNC_STORE_LAYOUT
	Layout            string `mapstructure:"layout"`
	DefaultCollection string `mapstructure:"defaultCollection"`
	PerProduct        *bool  `mapstructure:"perProduct"`
	CacheTTL          string `mapstructure:"cacheTTL"`
}

// GitSyncDef holds the definition for Git synchronization configuration.
type GitSyncDef struct {
	// Enabled indicates whether Git sync is enabled.
	// Default: false
	// Env: LICSYNC_GITSYNC_ENABLED
	Enabled *bool `mapstructure:"enabled"`

	// Repository is the Git repository URL.
	// Env: LICSYNC_GITSYNC_REPOSITORY
	Repository string `mapstructure:"repository"`

	// Branch is the branch to sync with.
	// Default: main
	Branch string `mapstructure:"branch"`

	// Path is the subdirectory within the repository to sync.
	// Default: licenses
	Path string `mapstructure:"path"`

	Auth        *GitSyncAuthDef     `mapstructure:"auth"`
	AutoSync    *GitSyncAutoSyncDef `mapstructure:"autoSync"`
	PushEnabled *bool               `mapstructure:"pushEnabled"`
	Commit      *GitSyncCommitDef   `mapstructure:"commit"`
	Retry       *RetryDef           `mapstructure:"retry"`
}

type GitSyncAuthDef struct {
	Type                  string `mapstructure:"type"`
	Token                 string `mapstructure:"token"`
	Username              string `mapstructure:"username"`
	SSHKey                string `mapstructure:"sshKey"`
	SSHKeyPath            string `mapstructure:"sshKeyPath"`
	SSHPassphrase         string `mapstructure:"sshPassphrase"`
	KnownHostsPath        string `mapstructure:"knownHostsPath"`
	InsecureIgnoreHostKey *bool  `mapstructure:"insecureIgnoreHostKey"`
}

type GitSyncAutoSyncDef struct {
	Enabled   *bool  `mapstructure:"enabled"`
	OnStartup *bool  `mapstructure:"onStartup"`
	Interval  int    `mapstructure:"interval"`
	Schedule  string `mapstructure:"schedule"`
	Watch     *bool  `mapstructure:"watch"`
	Debounce  string `mapstructure:"debounce"`
}

type GitSyncCommitDef struct {
	AuthorName  string `mapstructure:"authorName"`
	AuthorEmail string `mapstructure:"authorEmail"`
}

type RetryDef struct {
	InitialInterval string  `mapstructure:"initialInterval"`
	Factor          float64 `mapstructure:"factor"`
	MaxInterval     string  `mapstructure:"maxInterval"`
	MaxAttempts     int     `mapstructure:"maxAttempts"`
}

type BackupDef struct {
	Enabled     *bool  `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Region      string `mapstructure:"region"`
	AccessKey   string `mapstructure:"accessKey"`
	SecretKey   string `mapstructure:"secretKey"`
	UseSSL      *bool  `mapstructure:"useSSL"`
	OnPush      *bool  `mapstructure:"onPush"`
	Concurrency int    `mapstructure:"concurrency"`
}
