// Package config handles clrmeta.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/clrmeta/builder"
	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/indexcache"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "clrmeta.toml"

// Config represents a clrmeta.toml file.
type Config struct {
	Build  Build  `toml:"build"`
	Reader Reader `toml:"reader"`
	Cache  Cache  `toml:"cache"`
	Log    Log    `toml:"log"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`
}

// Build configures the table builder.
type Build struct {
	AllowNativeBodies     bool   `toml:"allow-native-bodies"`
	NormalizeTinyMaxStack bool   `toml:"normalize-tiny-max-stack"`
	RecomputeMaxStack     bool   `toml:"recompute-max-stack"`
	CodeRVA               uint32 `toml:"code-rva"`
	FieldDataRVA          uint32 `toml:"field-data-rva"`
	RuntimeVersion        string `toml:"runtime-version"`
}

// Reader configures image readers.
type Reader struct {
	PrewarmLimit      int  `toml:"prewarm-limit"`
	KeepPointerTables bool `toml:"keep-pointer-tables"`
	SkipBodies        bool `toml:"skip-bodies"`
}

// Cache configures the persisted index cache. An empty path disables it.
type Cache struct {
	Path       string `toml:"path"`
	MaxEntries int    `toml:"max-entries"`
}

// Log configures logging.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	b := builder.DefaultOptions()
	r := image.DefaultOptions()
	c := indexcache.DefaultOptions()
	return &Config{
		Build: Build{
			AllowNativeBodies:     b.AllowNativeBodies,
			NormalizeTinyMaxStack: b.NormalizeTinyMaxStack,
			RecomputeMaxStack:     b.RecomputeMaxStack,
			CodeRVA:               b.CodeRVA,
			FieldDataRVA:          b.FieldDataRVA,
			RuntimeVersion:        b.Version,
		},
		Reader: Reader{
			PrewarmLimit:      r.PrewarmLimit,
			KeepPointerTables: r.KeepPointerTables,
		},
		Cache: Cache{MaxEntries: c.MaxEntries},
		Log:   Log{Level: "warn", Format: "console"},
	}
}

// Parse decodes TOML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(data, c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// FindAndLoad walks up from startDir looking for clrmeta.toml and loads
// the first one found. It returns the defaults when there is none.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf(format, args...))
	}
	if c.Build.CodeRVA == 0 {
		return invalid("build.code-rva must be non-zero")
	}
	if c.Build.FieldDataRVA != 0 && c.Build.FieldDataRVA%8 != 0 {
		return invalid("build.field-data-rva 0x%x is not 8-byte aligned", c.Build.FieldDataRVA)
	}
	if v := c.Build.RuntimeVersion; v == "" || len(v) > 255 {
		return invalid("build.runtime-version must be 1 to 255 bytes, got %d", len(v))
	}
	if c.Reader.PrewarmLimit < 0 {
		return invalid("reader.prewarm-limit must not be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return invalid("cache.max-entries must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("log.format %q must be console or json", c.Log.Format)
	}
	return nil
}

// BuilderOptions returns the builder options described by c.
func (c *Config) BuilderOptions() builder.Options {
	return builder.Options{
		AllowNativeBodies:     c.Build.AllowNativeBodies,
		NormalizeTinyMaxStack: c.Build.NormalizeTinyMaxStack,
		RecomputeMaxStack:     c.Build.RecomputeMaxStack,
		CodeRVA:               c.Build.CodeRVA,
		FieldDataRVA:          c.Build.FieldDataRVA,
		Version:               c.Build.RuntimeVersion,
	}
}

// ReaderOptions returns the image reader options described by c.
func (c *Config) ReaderOptions() image.Options {
	return image.Options{
		PrewarmLimit:      c.Reader.PrewarmLimit,
		KeepPointerTables: c.Reader.KeepPointerTables,
	}
}

// CacheOptions returns the index cache options described by c.
func (c *Config) CacheOptions() indexcache.Options {
	return indexcache.Options{MaxEntries: c.Cache.MaxEntries}
}

// NewLogger builds a zap logger for the [log] section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	zc := zap.NewDevelopmentConfig()
	if c.Log.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
