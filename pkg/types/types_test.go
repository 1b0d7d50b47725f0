package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestEntryStatus_Servable(t *testing.T) {
	tests := []struct {
		status   EntryStatus
		expected bool
	}{
		{StatusEmpty, false},
		{StatusMaterializing, false},
		{StatusReady, true},
		{StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Servable(); got != tt.expected {
				t.Errorf("EntryStatus(%q).Servable() = %v, want %v", tt.status, got, tt.expected)
			}
		})
	}
}

func TestCacheStats_HitRate(t *testing.T) {
	if rate := (CacheStats{}).HitRate(); rate != 0 {
		t.Errorf("empty stats hit rate = %v, want 0", rate)
	}
	if rate := (CacheStats{Hits: 3, Misses: 1}).HitRate(); rate != 75 {
		t.Errorf("hit rate = %v, want 75", rate)
	}
}

func TestTranscodeError_MatchesSentinel(t *testing.T) {
	cause := errors.New("pipeline exploded")
	err := fmt.Errorf("materialize: %w", &TranscodeError{Source: "/music/a.flac", Engine: "gstreamer", Err: cause})

	if !errors.Is(err, ErrTranscodeFailed) {
		t.Error("TranscodeError should match ErrTranscodeFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("TranscodeError should unwrap to its cause")
	}

	var te *TranscodeError
	if !errors.As(err, &te) || te.Source != "/music/a.flac" {
		t.Errorf("errors.As failed or wrong source: %v", te)
	}
}

func TestTranscodeError_KeepsTooLarge(t *testing.T) {
	err := &TranscodeError{Source: "x", Engine: "mp3wav", Err: ErrEntryTooLarge}
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Error("TranscodeError should expose ErrEntryTooLarge through Unwrap")
	}
}

func TestConfigError_IsInvalidConfig(t *testing.T) {
	err := &ConfigError{Field: "mount.source_ext", Reason: "required"}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("ConfigError should match ErrInvalidConfig")
	}
	if err.Error() != "invalid configuration: mount.source_ext: required" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
