// Package types defines error types for the transcoding filesystem.
package types

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotCacheable    = errors.New("path is not cacheable")
	ErrEntryTooLarge   = errors.New("transcoded output exceeds entry size limit")
	ErrTranscodeFailed = errors.New("transcode failed")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrEngineNotFound  = errors.New("transcoding engine not found")
	ErrPipelineSyntax  = errors.New("invalid pipeline specification")
)

// TranscodeError represents a failed materialization with context.
type TranscodeError struct {
	Source string
	Engine string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s with %s: %v", e.Source, e.Engine, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Is makes every TranscodeError match ErrTranscodeFailed.
func (e *TranscodeError) Is(target error) bool {
	return target == ErrTranscodeFailed
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
