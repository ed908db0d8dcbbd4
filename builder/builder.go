package builder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/model"
)

// Options configures table building.
type Options struct {
	// AllowNativeBodies emits methods with native bodies at RVA 0 instead
	// of failing with native_body_unsupported.
	AllowNativeBodies bool
	// NormalizeTinyMaxStack encodes tiny-eligible bodies with a max stack
	// above 8 in tiny form.
	NormalizeTinyMaxStack bool
	// RecomputeMaxStack replaces each body's max stack with the depth
	// computed by il.ComputeMaxStack before encoding.
	RecomputeMaxStack bool
	// CodeRVA is the RVA at which the method body section is placed.
	CodeRVA uint32
	// FieldDataRVA places FieldRVA data; 0 places it after the code,
	// 8-byte aligned.
	FieldDataRVA uint32
	// Version is the metadata root version string.
	Version string
}

// DefaultOptions returns the default builder configuration.
func DefaultOptions() Options {
	return Options{
		CodeRVA: 0x2050,
		Version: "v4.0.30319",
	}
}

// Builder projects model graphs into metadata tables. A Builder holds no
// per-build state; each Build or Begin call gets its own Session, so one
// Builder may serve concurrent builds.
type Builder struct {
	options Options
	logger  *zap.Logger
}

// New creates a Builder. A nil logger uses the package logger.
func New(opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = Logger()
	}
	return &Builder{options: opts, logger: logger}
}

// NewWithDefaults creates a Builder with default options.
func NewWithDefaults() *Builder {
	return New(DefaultOptions(), nil)
}

// Options returns the configuration.
func (b *Builder) Options() Options {
	return b.options
}

// Build emits every row of m and finalizes the result.
func (b *Builder) Build(m *model.Module) (*Result, error) {
	s, err := b.Begin(m)
	if err != nil {
		return nil, err
	}
	if err := s.EmitAll(); err != nil {
		return nil, fmt.Errorf("build %s: %w", m.Name, err)
	}
	return s.Finalize()
}
