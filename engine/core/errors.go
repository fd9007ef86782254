package core

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceLoad is returned when a mesh, texture or material could not be parsed or uploaded.
	ErrResourceLoad = errors.New("resource load failure")
	// ErrInstanceBufferOverflow is returned when a frame slot cannot hold the requested records.
	ErrInstanceBufferOverflow = errors.New("instance buffer overflow")
	// ErrInvariantViolation marks programming errors; it is raised through panic, never returned.
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidFrameSlot   = errors.New("invalid frame slot")
	ErrAssetNotFound      = errors.New("asset not found")
	ErrUnsupportedAsset   = errors.New("unsupported asset type")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// ResourceLoadError describes which resource failed and why.
type ResourceLoadError struct {
	Kind string
	Path string
	Err  error
}

func NewResourceLoadError(kind, path string, err error) *ResourceLoadError {
	return &ResourceLoadError{Kind: kind, Path: path, Err: err}
}

func (e *ResourceLoadError) Error() string {
	return fmt.Sprintf("failed to load %s '%s': %v", e.Kind, e.Path, e.Err)
}

func (e *ResourceLoadError) Unwrap() error {
	return e.Err
}

func (e *ResourceLoadError) Is(target error) bool {
	return target == ErrResourceLoad
}

// Invariantf panics with an error wrapping ErrInvariantViolation.
func Invariantf(format string, args ...interface{}) {
	err := fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
	LogError(err.Error())
	panic(err)
}
