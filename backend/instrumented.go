package backend

import (
	"context"
	"errors"
	"time"

	"github.com/reducekit/asset-cache/telemetry"
)

// Instrumented wraps a Backend with metrics recording.
type Instrumented struct {
	backend Backend
	name    string
}

// NewInstrumented creates a new instrumented backend wrapper.
func NewInstrumented(b Backend, name string) *Instrumented {
	return &Instrumented{backend: b, name: name}
}

func (ib *Instrumented) Write(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	err := ib.backend.Write(ctx, path, data)
	telemetry.RecordBackendOp(ctx, ib.name, "write", outcomeFromError(err), time.Since(start), int64(len(data)))
	return err
}

func (ib *Instrumented) Read(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := ib.backend.Read(ctx, path)
	telemetry.RecordBackendOp(ctx, ib.name, "read", outcomeFromError(err), time.Since(start), int64(len(data)))
	return data, err
}

func (ib *Instrumented) Exists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	exists, err := ib.backend.Exists(ctx, path)
	telemetry.RecordBackendOp(ctx, ib.name, "exists", outcomeFromError(err), time.Since(start), 0)
	return exists, err
}

func (ib *Instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := ib.backend.Delete(ctx, path)
	telemetry.RecordBackendOp(ctx, ib.name, "delete", outcomeFromError(err), time.Since(start), 0)
	return err
}

func (ib *Instrumented) Rename(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	err := ib.backend.Rename(ctx, oldPath, newPath)
	telemetry.RecordBackendOp(ctx, ib.name, "rename", outcomeFromError(err), time.Since(start), 0)
	return err
}

func (ib *Instrumented) List(ctx context.Context, root string) ([]string, error) {
	start := time.Now()
	paths, err := ib.backend.List(ctx, root)
	telemetry.RecordBackendOp(ctx, ib.name, "list", outcomeFromError(err), time.Since(start), 0)
	return paths, err
}

func (ib *Instrumented) ListContaining(ctx context.Context, root, substr string) ([]Entry, error) {
	start := time.Now()
	entries, err := ib.backend.ListContaining(ctx, root, substr)
	telemetry.RecordBackendOp(ctx, ib.name, "list_containing", outcomeFromError(err), time.Since(start), 0)
	return entries, err
}

// Unwrap returns the underlying backend.
func (ib *Instrumented) Unwrap() Backend {
	return ib.backend
}

func outcomeFromError(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	return "error"
}

// Compile-time interface check
var _ Backend = (*Instrumented)(nil)
