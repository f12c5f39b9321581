// Package config defines the archive's configuration and credentials
// shapes (§6). Loading configuration files, credentials files and
// environment search paths is outside this package's scope (and out
// of scope for the core, per the Non-goals); callers populate these
// structs however their deployment prefers and hand them to an
// archive at open time.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stcorp/muninn/pkg/logger"
)

// ArchiveConfig is the [archive] section: cascade tuning, the active
// backend selections, and the extension/synchronizer module lists.
type ArchiveConfig struct {
	Database                string   `yaml:"database"`
	Storage                 string   `yaml:"storage"`
	CascadeGracePeriod      int      `yaml:"cascade_grace_period"`
	MaxCascadeCycles        int      `yaml:"max_cascade_cycles"`
	NamespaceExtensions     []string `yaml:"namespace_extensions"`
	ProductTypeExtensions   []string `yaml:"product_type_extensions"`
	HookExtensions          []string `yaml:"hook_extensions"`
	RemoteBackendExtensions []string `yaml:"remote_backend_extensions"`
	Synchronizers           []string `yaml:"synchronizers"`
	AuthFile                string   `yaml:"auth_file"`
	TempDir                 string   `yaml:"tempdir"`
}

// Defaults applies the documented defaults (§4.9) to zero-valued
// fields; callers normally do this right after parsing a config file.
func (c *ArchiveConfig) Defaults() {
	if c.MaxCascadeCycles == 0 {
		c.MaxCascadeCycles = 25
	}
}

// DatabaseBackendConfig covers both [postgresql] and [sqlite]
// sections; fields unused by a given backend are simply left zero.
type DatabaseBackendConfig struct {
	Library           string `yaml:"library"`
	ConnectionString  string `yaml:"connection_string"`
	TablePrefix       string `yaml:"table_prefix"`
	ModSpatialitePath string `yaml:"mod_spatialite_path"`

	// SummaryCacheURL, when set, points the postgres backend at a Redis
	// instance (redis://host:port/db) for a read-through summary()
	// result cache. Left empty, summary() always queries directly.
	SummaryCacheURL string `yaml:"summary_cache_url"`

	// SummaryCacheTTLSeconds bounds how long a cached summary() result
	// stays valid before it's recomputed; zero uses the backend's
	// built-in default.
	SummaryCacheTTLSeconds int `yaml:"summary_cache_ttl_seconds"`
}

// StorageConfig covers [fs], [s3], [swift] and [none]; the active
// Kind selects which sub-struct's fields apply.
type StorageConfig struct {
	Kind string `yaml:"-"`

	FS    FSConfig    `yaml:"fs"`
	S3    S3Config    `yaml:"s3"`
	Swift SwiftConfig `yaml:"swift"`
}

type FSConfig struct {
	Root        string `yaml:"root"`
	UseSymlinks bool   `yaml:"use_symlinks"`
}

type S3Config struct {
	Bucket          string            `yaml:"bucket"`
	Prefix          string            `yaml:"prefix"`
	Host            string            `yaml:"host"`
	Port            int               `yaml:"port"`
	Region          string            `yaml:"region"`
	AccessKey       string            `yaml:"access_key"`
	SecretAccessKey string            `yaml:"secret_access_key"`
	DownloadArgs    map[string]string `yaml:"download_args"`
	UploadArgs      map[string]string `yaml:"upload_args"`
	CopyArgs        map[string]string `yaml:"copy_args"`
	TransferConfig  map[string]string `yaml:"transfer_config"`
}

type SwiftConfig struct {
	Container string `yaml:"container"`
	User      string `yaml:"user"`
	Key       string `yaml:"key"`
	AuthURL   string `yaml:"authurl"`
}

// AuthType enumerates the credential record shapes §6 names.
type AuthType string

const (
	AuthBasic  AuthType = "basic"
	AuthOAuth2 AuthType = "oauth2"
	AuthS3     AuthType = "S3"
	AuthSwift  AuthType = "Swift"
)

// Credentials is a single credentials-file record. Only the fields
// relevant to AuthType are populated.
type Credentials struct {
	AuthType AuthType `yaml:"auth_type"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	GrantType    string            `yaml:"grant_type"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	TokenURL     string            `yaml:"token_url"`
	AuthArgs     map[string]string `yaml:"auth_args"`

	Bucket          string `yaml:"bucket"`
	AccessKey       string `yaml:"access_key"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Port            int    `yaml:"port"`

	User string `yaml:"user"`
	Key  string `yaml:"key"`
}

// NormalizeGrantType accepts the documented "grand_type" misspelling
// in place of "grant_type", logging a warning so the typo is visible
// without failing the load (§9 open question).
func (c *Credentials) NormalizeGrantType(grandType string, log *logger.Logger) {
	if c.GrantType == "" && grandType != "" {
		log.Warn("credentials record uses misspelled \"grand_type\"; treating it as \"grant_type\"")
		c.GrantType = grandType
	}
}

// CredentialsStore maps a host, URL prefix, or "s3://bucket" key to a
// Credentials record, resolved by longest-prefix match so a specific
// bucket or path can override a host-wide entry.
type CredentialsStore struct {
	entries map[string]Credentials
	keys    []string // kept sorted longest-first for Lookup
}

// NewCredentialsStore builds a store from a flat key→record mapping,
// e.g. as parsed from the JSON credentials file §6 describes.
func NewCredentialsStore(entries map[string]Credentials) *CredentialsStore {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return &CredentialsStore{entries: entries, keys: keys}
}

// Lookup returns the credentials whose key is the longest prefix of
// target (a host, URL, or "s3://bucket" string).
func (s *CredentialsStore) Lookup(target string) (Credentials, bool) {
	for _, k := range s.keys {
		if strings.HasPrefix(target, k) {
			return s.entries[k], true
		}
	}
	return Credentials{}, false
}

// Validate checks a record's required fields for its declared
// AuthType, returning a descriptive error mentioning the offending
// key so a ConfigError at archive-open points at the right record.
func (c Credentials) Validate() error {
	switch c.AuthType {
	case "", AuthBasic:
		if c.Username == "" {
			return fmt.Errorf("basic credentials missing username")
		}
	case AuthOAuth2:
		if c.GrantType == "" {
			return fmt.Errorf("oauth2 credentials missing grant_type")
		}
		if c.TokenURL == "" {
			return fmt.Errorf("oauth2 credentials missing token_url")
		}
	case AuthS3:
		if c.Bucket == "" || c.AccessKey == "" {
			return fmt.Errorf("S3 credentials missing bucket or access_key")
		}
	case AuthSwift:
		if c.User == "" || c.Key == "" {
			return fmt.Errorf("Swift credentials missing user or key")
		}
	default:
		return fmt.Errorf("unknown auth_type: %q", c.AuthType)
	}
	return nil
}
