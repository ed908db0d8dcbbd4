package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/indexcache"
	"github.com/wippyai/clrmeta/internal/pefile"
	"github.com/wippyai/clrmeta/model"
)

// input is one opened image.
type input struct {
	path   string
	size   int
	file   *pefile.File
	reader *image.Reader
	cached bool
}

func openInput(ctx context.Context, path string) (*input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	f, err := pefile.Open(data, path)
	if err != nil {
		return nil, err
	}
	r, err := image.OpenWithOptions(f.Metadata, path, cfg.ReaderOptions())
	if err != nil {
		return nil, err
	}
	in := &input{path: path, size: len(data), file: f, reader: r}

	if cfg.Cache.Path != "" {
		start := time.Now()
		store, err := indexcache.Open(ctx, cfg.Cache.Path, cfg.CacheOptions())
		if err != nil {
			return nil, fmt.Errorf("index cache: %w", err)
		}
		defer store.Close()
		if in.cached, err = store.Warm(ctx, f.Metadata, r); err != nil {
			log.Warn("index cache unavailable", zap.String("path", cfg.Cache.Path), zap.Error(err))
		}
		log.Debug("indexes ready",
			zap.Bool("cache_hit", in.cached),
			zap.Duration("elapsed", time.Since(start)))
	}
	return in, nil
}

// bodies returns the section reader, or nil for a bare metadata root.
func (in *input) bodies() model.BodySource {
	if in.file.IsRaw() {
		return nil
	}
	return in.file
}

// load builds the object graph. Bodies are decoded unless skipBodies is
// set or the configuration disables them.
func (in *input) load(skipBodies bool) (*model.Module, error) {
	return model.Load(in.reader, in.bodies(), model.LoadOptions{
		EntryPoint: in.file.EntryPoint,
		SkipBodies: skipBodies || cfg.Reader.SkipBodies,
	})
}
