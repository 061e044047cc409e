// Package config loads and resolves the TOML configuration file: the
// mirror list, cache/prefix/cellar/db paths, the target arch, and the
// network retry count. No environment variable is load-bearing — the
// config file (or its built-in defaults) is the sole source of settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/pacbrew/pacbrew/internal/mirror"
	"github.com/pacbrew/pacbrew/internal/pacerr"
)

// DefaultRetry is network.retry's default when the field is absent.
const DefaultRetry = 5

// EnvConfigFile overrides the config file path, used only to locate the
// file itself — once found, every setting inside it comes from the file.
const EnvConfigFile = "PACBREW_CONFIG"

// Mirror is one entry in mirror_list.
type Mirror struct {
	URL    string `toml:"url"`
	APIURL string `toml:"api_url,omitempty"`
	Type   string `toml:"type"`
}

// Base holds the [base] section.
type Base struct {
	Cache     string `toml:"cache"`
	Prefix    string `toml:"prefix"`
	LocalOpt  string `toml:"local_opt,omitempty"`
	DB        string `toml:"db,omitempty"`
	Arch      string `toml:"arch"`
}

// Network holds the [network] section.
type Network struct {
	Retry int `toml:"retry"`
}

// Config is the fully-resolved configuration: every path absolute, every
// default substituted.
type Config struct {
	MirrorList []Mirror `toml:"mirror_list"`
	Base       Base     `toml:"base"`
	Network    Network  `toml:"network"`
}

// Path returns the config file location: $PACBREW_CONFIG if set, else
// ~/.config/pacbrew/config.toml.
func Path() (string, error) {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", pacerr.IoFailed("resolve home directory", "", err)
	}
	return filepath.Join(home, ".config", "pacbrew", "config.toml"), nil
}

// Default returns a Config with no mirrors and paths rooted under the
// user's home directory, used when no config file exists yet.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, pacerr.IoFailed("resolve home directory", "", err)
	}
	prefix := filepath.Join(home, ".pacbrew")
	return &Config{
		Base: Base{
			Cache:  filepath.Join(prefix, "cache"),
			Prefix: prefix,
			Arch:   defaultArch(),
		},
		Network: Network{Retry: DefaultRetry},
	}, nil
}

// Load reads the config file, falling back to Default if it doesn't
// exist. Defaults are substituted for any field the file leaves unset,
// then every path is made absolute.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path — split out of Load so tests
// can point at a fixture without touching $HOME.
func LoadFrom(path string) (*Config, error) {
	def, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		def.resolvePaths()
		return def, nil
	}
	if err != nil {
		return nil, pacerr.IoFailed("read config", path, err)
	}

	cfg := &Config{Network: Network{Retry: DefaultRetry}}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, pacerr.Wrap(pacerr.KindSerdeTOML, err, "failed to parse config file", pacerr.WithPath(path))
	}

	if cfg.Base.Cache == "" {
		cfg.Base.Cache = def.Base.Cache
	}
	if cfg.Base.Prefix == "" {
		cfg.Base.Prefix = def.Base.Prefix
	}
	if cfg.Base.Arch == "" {
		cfg.Base.Arch = def.Base.Arch
	}
	if cfg.Network.Retry == 0 {
		cfg.Network.Retry = DefaultRetry
	}
	cfg.resolvePaths()
	return cfg, nil
}

// resolvePaths fills in LocalOpt's default (<prefix>/local/opt) and makes
// every path absolute relative to the current working directory.
func (c *Config) resolvePaths() {
	if c.Base.LocalOpt == "" {
		c.Base.LocalOpt = filepath.Join(c.Base.Prefix, "local", "opt")
	}
	c.Base.Cache = abs(c.Base.Cache)
	c.Base.Prefix = abs(c.Base.Prefix)
	c.Base.LocalOpt = abs(c.Base.LocalOpt)
	if c.Base.DB != "" {
		c.Base.DB = abs(c.Base.DB)
	}
}

func abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}

// defaultArch reports the host CPU architecture as "arm64" or "x86_64",
// with no OS suffix. Operators are expected to override it in the config file;
// this is only a reasonable seed.
func defaultArch() string {
	switch runtime.GOARCH {
	case "arm64":
		return "arm64"
	default:
		return "x86_64"
	}
}

// Mirrors converts the configured mirror_list into the mirror package's
// registry, validating each entry's Type against the known kinds.
func (c *Config) Mirrors() (*mirror.Registry, error) {
	entries := make([]mirror.Entry, 0, len(c.MirrorList))
	for _, m := range c.MirrorList {
		kind, err := mirror.ParseKind(m.Type)
		if err != nil {
			return nil, pacerr.New(pacerr.KindSerdeTOML, fmt.Sprintf("mirror_list entry %q: %v", m.URL, err))
		}
		entries = append(entries, mirror.Entry{Kind: kind, BaseURL: m.URL, APIBaseURL: m.APIURL})
	}
	return mirror.New(entries...), nil
}
