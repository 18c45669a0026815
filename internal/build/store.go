// Package build tracks scaffold builds through their lifecycle and packages
// completed builds as zip archives.
package build

import (
	"context"
	"errors"
	"time"

	"github.com/platform-factory/backend/internal/codegen"
)

var (
	ErrNotFound    = errors.New("build not found")
	ErrNotComplete = errors.New("build is not complete")
	ErrTerminal    = errors.New("build already reached a terminal state")
)

type Status string

const (
	StatusBuilding Status = "building"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Result is the registry record of one build.
type Result struct {
	ID          string                  `json:"id"`
	Status      Status                  `json:"status"`
	Spec        codegen.PlatformSpec    `json:"spec"`
	Files       []codegen.GeneratedFile `json:"files"`
	DownloadURL string                  `json:"downloadUrl,omitempty"`
	Error       string                  `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	CompletedAt *time.Time              `json:"completedAt,omitempty"`
}

func (r *Result) clone() *Result {
	out := *r
	out.Files = append([]codegen.GeneratedFile(nil), r.Files...)
	out.Spec.Features = append([]string(nil), r.Spec.Features...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Store holds build records by id. Implementations return copies so callers
// never share a record.
type Store interface {
	Get(ctx context.Context, id string) (*Result, error)
	Put(ctx context.Context, result *Result) error
}
