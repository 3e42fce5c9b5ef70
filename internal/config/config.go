package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// IncomparablePolicy decides the sync direction when version indicators
// cannot tell local and remote copies apart
type IncomparablePolicy string

const (
	IncomparableUpload   IncomparablePolicy = "upload"
	IncomparableDownload IncomparablePolicy = "download"
	IncomparableSame     IncomparablePolicy = "same"
)

// PublisherKind selects the change-log event transport
type PublisherKind string

const (
	PublisherDelta PublisherKind = "delta"
	PublisherNATS  PublisherKind = "nats"
	PublisherFile  PublisherKind = "file"
)

// Config represents the complete prezsyncd configuration
type Config struct {
	Manifest  string          `yaml:"manifest"`
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	Sync      SyncConfig      `yaml:"sync"`
	Changelog ChangelogConfig `yaml:"changelog"`
	Repo      RepoConfig      `yaml:"repo"`
	Paths     PathsConfig     `yaml:"paths"`
	Auth      AuthConfig      `yaml:"auth"`
	Serve     ServeConfig     `yaml:"serve"`
	Watch     WatchConfig     `yaml:"watch"`
}

// EndpointConfig configures the remote SPARQL endpoint
type EndpointConfig struct {
	URL          string        `yaml:"url"`
	Username     string        `yaml:"username"`
	PasswordFile string        `yaml:"password_file"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SyncConfig gates the write phases of a sync run. Nil flags default to
// true, except the local ones when a repository is configured.
type SyncConfig struct {
	UpdateRemote *bool              `yaml:"update_remote"`
	UpdateLocal  *bool              `yaml:"update_local"`
	AddRemote    *bool              `yaml:"add_remote"`
	AddLocal     *bool              `yaml:"add_local"`
	Incomparable IncomparablePolicy `yaml:"incomparable"`
}

// ChangelogConfig configures patch generation and publishing
type ChangelogConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Publisher PublisherKind `yaml:"publisher"`
	Delta     DeltaConfig   `yaml:"delta"`
	NATS      NATSConfig    `yaml:"nats"`
	File      FileConfig    `yaml:"file"`
}

// DeltaConfig points at an RDF Delta patch log server
type DeltaConfig struct {
	URL        string `yaml:"url"`
	Datasource string `yaml:"datasource"`
}

// NATSConfig configures the NATS patch publisher
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Creator string `yaml:"creator"`
}

// FileConfig appends patches to a file; "-" means stdout
type FileConfig struct {
	Path string `yaml:"path"`
}

// RepoConfig configures the Git repository holding the manifest (serve mode)
type RepoConfig struct {
	URL string `yaml:"url"`
	Ref string `yaml:"ref"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	StateDir string `yaml:"state_dir"`
}

// AuthConfig configures Git authentication
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
	AllowedRefs             []string `yaml:"allowed_refs"`
	MetricsPath             string   `yaml:"metrics_path"`
	// SocketName selects a socket-activated listener by its
	// FileDescriptorName=
	SocketName string `yaml:"socket_name"`
}

// WatchConfig configures the local file watcher
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads, parses, defaults and validates the configuration file
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	cfg.ApplyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Read parses the configuration file and expands environment variables,
// leaving defaults and validation to the caller so command-line overrides
// can be applied first.
func Read(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Manifest = os.ExpandEnv(c.Manifest)
	c.Endpoint.URL = os.ExpandEnv(c.Endpoint.URL)
	c.Endpoint.Username = os.ExpandEnv(c.Endpoint.Username)
	c.Endpoint.PasswordFile = os.ExpandEnv(c.Endpoint.PasswordFile)
	c.Changelog.Delta.URL = os.ExpandEnv(c.Changelog.Delta.URL)
	c.Changelog.Delta.Datasource = os.ExpandEnv(c.Changelog.Delta.Datasource)
	c.Changelog.NATS.URL = os.ExpandEnv(c.Changelog.NATS.URL)
	c.Changelog.NATS.Subject = os.ExpandEnv(c.Changelog.NATS.Subject)
	c.Changelog.NATS.Creator = os.ExpandEnv(c.Changelog.NATS.Creator)
	c.Changelog.File.Path = os.ExpandEnv(c.Changelog.File.Path)
	c.Repo.URL = os.ExpandEnv(c.Repo.URL)
	c.Repo.Ref = os.ExpandEnv(c.Repo.Ref)
	c.Paths.StateDir = os.ExpandEnv(c.Paths.StateDir)
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
	c.Serve.SocketName = os.ExpandEnv(c.Serve.SocketName)
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	for _, f := range []**bool{&c.Sync.UpdateRemote, &c.Sync.AddRemote} {
		if *f == nil {
			v := true
			*f = &v
		}
	}
	// a repository checkout is reset on every cycle, local writes would be lost
	for _, f := range []**bool{&c.Sync.UpdateLocal, &c.Sync.AddLocal} {
		if *f == nil {
			v := c.Repo.URL == ""
			*f = &v
		}
	}
	if c.Sync.Incomparable == "" {
		c.Sync.Incomparable = IncomparableUpload
	}
	if c.Endpoint.Timeout == 0 {
		c.Endpoint.Timeout = 60 * time.Second
	}
	if c.Changelog.Enabled && c.Changelog.Publisher == "" {
		c.Changelog.Publisher = PublisherDelta
	}
	if c.Changelog.NATS.Creator == "" {
		c.Changelog.NATS.Creator = "prezsyncd"
	}
	if c.Serve.Enabled && c.Serve.MetricsPath == "" {
		c.Serve.MetricsPath = "/metrics"
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = 2 * time.Second
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}

	// Validate endpoint
	if c.Endpoint.URL == "" {
		return fmt.Errorf("endpoint.url is required")
	}
	if !strings.HasPrefix(c.Endpoint.URL, "http://") && !strings.HasPrefix(c.Endpoint.URL, "https://") {
		return fmt.Errorf("endpoint.url must be an http(s) URL: %s", c.Endpoint.URL)
	}
	if c.Endpoint.PasswordFile != "" && c.Endpoint.Username == "" {
		return fmt.Errorf("endpoint.password_file is set but endpoint.username is empty")
	}

	// Validate incomparable policy
	switch c.Sync.Incomparable {
	case IncomparableUpload, IncomparableDownload, IncomparableSame:
		// valid
	default:
		return fmt.Errorf("invalid sync.incomparable policy: %s (must be upload, download, or same)", c.Sync.Incomparable)
	}

	if err := c.validateChangelog(); err != nil {
		return err
	}

	// Validate repo config when a remote repository is used
	if c.Repo.URL != "" {
		if c.Repo.Ref == "" {
			return fmt.Errorf("repo.ref is required when repo.url is set")
		}
		if c.Paths.StateDir == "" {
			return fmt.Errorf("paths.state_dir is required when repo.url is set")
		}
		if !filepath.IsAbs(c.Paths.StateDir) {
			return fmt.Errorf("paths.state_dir must be an absolute path: %s", c.Paths.StateDir)
		}
		if filepath.IsAbs(c.Manifest) {
			return fmt.Errorf("manifest must be relative to the repository when repo.url is set: %s", c.Manifest)
		}
		if Flag(c.Sync.UpdateLocal) || Flag(c.Sync.AddLocal) {
			return fmt.Errorf("sync.update_local and sync.add_local must be false when repo.url is set")
		}
	}

	// Validate auth: only one auth method may be configured
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}

	// Validate auth: when auth is configured, the URL scheme must match
	if c.Auth.SSHKeyFile != "" && !c.IsSSH() {
		return fmt.Errorf("auth.ssh_key_file is set but repo.url does not use an SSH scheme (git@ or ssh://)")
	}
	if c.Auth.HTTPSTokenFile != "" && !c.IsHTTPS() {
		return fmt.Errorf("auth.https_token_file is set but repo.url does not use HTTPS scheme")
	}

	// Validate serve config if enabled
	if c.Serve.Enabled {
		if c.Repo.URL == "" {
			return fmt.Errorf("repo.url is required when serve is enabled")
		}
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
		if c.Serve.GitHubWebhookSecretFile == "" {
			return fmt.Errorf("serve.github_webhook_secret_file is required when serve is enabled")
		}
		if !strings.HasPrefix(c.Serve.MetricsPath, "/") {
			return fmt.Errorf("serve.metrics_path must start with /: %s", c.Serve.MetricsPath)
		}
	}

	return nil
}

func (c *Config) validateChangelog() error {
	if !c.Changelog.Enabled {
		return nil
	}
	switch c.Changelog.Publisher {
	case PublisherDelta:
		if c.Changelog.Delta.URL == "" || c.Changelog.Delta.Datasource == "" {
			return fmt.Errorf("changelog.delta.url and changelog.delta.datasource are required for the delta publisher")
		}
	case PublisherNATS:
		if c.Changelog.NATS.URL == "" || c.Changelog.NATS.Subject == "" {
			return fmt.Errorf("changelog.nats.url and changelog.nats.subject are required for the nats publisher")
		}
	case PublisherFile:
		if c.Changelog.File.Path == "" {
			return fmt.Errorf("changelog.file.path is required for the file publisher")
		}
	default:
		return fmt.Errorf("invalid changelog.publisher: %s (must be delta, nats, or file)", c.Changelog.Publisher)
	}
	return nil
}

// RepoDir returns the path where the git repository is checked out
func (c *Config) RepoDir() string {
	return filepath.Join(c.Paths.StateDir, "repo")
}

// ManifestPath returns the manifest location, resolved against the
// repository checkout when a remote repository is configured
func (c *Config) ManifestPath() string {
	if c.Repo.URL != "" && !filepath.IsAbs(c.Manifest) {
		return filepath.Join(c.RepoDir(), c.Manifest)
	}
	return c.Manifest
}

// EndpointPassword reads the endpoint password file, if any
func (c *Config) EndpointPassword() (string, error) {
	if c.Endpoint.PasswordFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Endpoint.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("failed to read endpoint password file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}

// IsHTTPS returns true if the repo URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(c.Repo.URL, "https://")
}

// IsSSH returns true if the repo URL uses SSH
func (c *Config) IsSSH() bool {
	return strings.HasPrefix(c.Repo.URL, "git@") || strings.HasPrefix(c.Repo.URL, "ssh://")
}

// Flag dereferences a defaulted sync flag
func Flag(b *bool) bool {
	return b == nil || *b
}
