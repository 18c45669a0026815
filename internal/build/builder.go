package build

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/codegen"
	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/pkg/logger"
)

// Builder runs code generation for a spec and records the build lifecycle.
type Builder struct {
	store          Store
	downloadPrefix string
	generate       func(codegen.PlatformSpec) ([]codegen.GeneratedFile, error)
	now            func() time.Time
	newID          func() string
}

func NewBuilder(store Store, downloadPrefix string) *Builder {
	return &Builder{
		store:          store,
		downloadPrefix: downloadPrefix,
		generate:       codegen.Generate,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
}

func (b *Builder) Store() Store {
	return b.store
}

// Start registers a new build, generates its files and records the terminal
// state. Generation failures end up on the record, not in the returned error,
// which only reports store failures.
func (b *Builder) Start(ctx context.Context, spec codegen.PlatformSpec) (*Result, error) {
	result := &Result{
		ID:        b.newID(),
		Status:    StatusBuilding,
		Spec:      spec,
		Files:     []codegen.GeneratedFile{},
		CreatedAt: b.now().UTC(),
	}
	if err := b.store.Put(ctx, result); err != nil {
		return nil, fmt.Errorf("register build: %w", err)
	}

	logger.Info("Build started", zap.String("build_id", result.ID), zap.String("platform", spec.Name))

	files, genErr := b.safeGenerate(spec)

	final, err := b.transition(ctx, result.ID, func(r *Result) {
		completed := b.now().UTC()
		r.CompletedAt = &completed
		if genErr != nil {
			r.Status = StatusError
			r.Error = genErr.Error()
			return
		}
		r.Status = StatusComplete
		r.Files = files
		r.DownloadURL = b.downloadPrefix + r.ID
	})
	if err != nil {
		return nil, err
	}

	metrics.BuildsTotal.WithLabelValues(string(final.Status)).Inc()
	if final.Status == StatusComplete {
		metrics.GeneratedFiles.Observe(float64(len(final.Files)))
		logger.Info("Build complete", zap.String("build_id", final.ID), zap.Int("files", len(final.Files)))
	} else {
		logger.Warn("Build failed", zap.String("build_id", final.ID), zap.String("error", final.Error))
	}
	return final, nil
}

// transition applies mutate to a non-terminal build and stores it.
func (b *Builder) transition(ctx context.Context, id string, mutate func(*Result)) (*Result, error) {
	current, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTerminal, id, current.Status)
	}
	mutate(current)
	if err := b.store.Put(ctx, current); err != nil {
		return nil, fmt.Errorf("record build %s: %w", id, err)
	}
	return current, nil
}

func (b *Builder) safeGenerate(spec codegen.PlatformSpec) (files []codegen.GeneratedFile, err error) {
	defer func() {
		if r := recover(); r != nil {
			files = nil
			err = fmt.Errorf("code generation panicked: %v", r)
		}
	}()
	return b.generate(spec)
}
