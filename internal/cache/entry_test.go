package cache

import (
	"errors"
	"testing"

	"github.com/ajaxzhan/gstfs/pkg/types"
)

func TestEntry_NewReportsSentinelSize(t *testing.T) {
	e := newEntry("/a.mp3", "/src/a.flac", 0)

	if e.Size() != types.SizeUnknown {
		t.Errorf("new entry size = %d, want SizeUnknown", e.Size())
	}
	if e.Size() == 0 {
		t.Error("sentinel size must not be zero")
	}
	if e.Status() != types.StatusEmpty {
		t.Errorf("new entry status = %s, want empty", e.Status())
	}
	if e.Name() != "/a.mp3" || e.Source() != "/src/a.flac" {
		t.Errorf("unexpected name/source: %s %s", e.Name(), e.Source())
	}
}

func TestEntry_MaterializeSuccess(t *testing.T) {
	e := newEntry("/a.mp3", "/src/a.flac", 0)
	e.Lock()
	defer e.Unlock()

	e.Begin()
	if e.Len() != 0 {
		t.Errorf("Begin should start from zero length, got %d", e.Len())
	}
	if e.Size() != types.SizeUnknown {
		t.Error("reported size should stay unknown while materializing")
	}

	for _, chunk := range []string{"hello ", "transcoded ", "world"} {
		if err := e.Append([]byte(chunk)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	e.Complete(nil)

	if e.Status() != types.StatusReady {
		t.Fatalf("status = %s, want ready", e.Status())
	}
	if e.Size() != int64(len("hello transcoded world")) {
		t.Errorf("Size() = %d, want %d", e.Size(), len("hello transcoded world"))
	}

	dest := make([]byte, 10)
	n, err := e.ReadAt(dest, 6)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(dest[:n]) != "transcoded" {
		t.Errorf("ReadAt = %q, want %q", dest[:n], "transcoded")
	}
}

func TestEntry_MaterializeFailure(t *testing.T) {
	e := newEntry("/a.mp3", "/src/a.flac", 0)
	e.Lock()
	defer e.Unlock()

	cause := errors.New("decoder died")
	e.Begin()
	_ = e.Append([]byte("partial"))
	e.Complete(cause)

	if e.Status() != types.StatusFailed {
		t.Fatalf("status = %s, want failed", e.Status())
	}
	if !errors.Is(e.Err(), cause) {
		t.Errorf("Err() = %v, want %v", e.Err(), cause)
	}
	if e.Len() != 0 {
		t.Errorf("partial output should be dropped, Len() = %d", e.Len())
	}
	if e.Size() != types.SizeUnknown {
		t.Error("failed entry should keep reporting the sentinel size")
	}

	if _, err := e.ReadAt(make([]byte, 4), 0); !errors.Is(err, cause) {
		t.Errorf("ReadAt on failed entry should return the failure, got: %v", err)
	}

	// A retry starts clean.
	e.Begin()
	if e.Err() != nil || e.Status() != types.StatusMaterializing {
		t.Errorf("Begin should clear failure, status=%s err=%v", e.Status(), e.Err())
	}
}

func TestEntry_AppendRequiresMaterializing(t *testing.T) {
	e := newEntry("/a.mp3", "/src/a.flac", 0)
	e.Lock()
	defer e.Unlock()

	if err := e.Append([]byte("x")); err == nil {
		t.Error("Append on empty entry should fail")
	}
	if _, err := e.ReadAt(make([]byte, 1), 0); err == nil {
		t.Error("ReadAt on empty entry should fail")
	}
}

func TestEntry_TooLarge(t *testing.T) {
	e := newEntry("/a.mp3", "/src/a.flac", 4)
	e.Lock()
	defer e.Unlock()

	e.Begin()
	err := e.Append([]byte("too long"))
	if !errors.Is(err, types.ErrEntryTooLarge) {
		t.Errorf("expected ErrEntryTooLarge, got: %v", err)
	}
}

func TestEntry_Release(t *testing.T) {
	e := newEntry("/a.mp3", "/src/a.flac", 0)
	e.Lock()
	e.Begin()
	_ = e.Append([]byte("data"))
	e.Complete(nil)
	e.release()
	e.Unlock()

	if e.Size() != types.SizeUnknown {
		t.Error("released entry should report the sentinel size")
	}
	e.Lock()
	defer e.Unlock()
	if e.Status() != types.StatusEmpty || e.Len() != 0 {
		t.Errorf("released entry status=%s len=%d", e.Status(), e.Len())
	}
}

func TestEntry_TryLock(t *testing.T) {
	e := newEntry("/a.mp3", "/src/a.flac", 0)

	if !e.TryLock() {
		t.Fatal("TryLock on free entry should succeed")
	}
	if e.TryLock() {
		t.Error("TryLock on held entry should fail")
	}
	e.Unlock()
	if !e.TryLock() {
		t.Error("TryLock after Unlock should succeed")
	}
	e.Unlock()
}
