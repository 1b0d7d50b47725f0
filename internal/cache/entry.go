package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ajaxzhan/gstfs/pkg/types"
)

// Entry holds the transcoded content of one virtual file.
//
// The entry lock guards status, buffer and error. It is held by open for
// the whole materialization and by read while copying out, so a reader that
// arrives during a transcode waits for it and never sees partial output.
// Methods documented as "caller must hold the lock" do not lock themselves.
type Entry struct {
	name   string // virtual path, registry key
	source string // resolved source path

	mu     sync.Mutex
	status types.EntryStatus
	buf    *Buffer
	err    error

	// size is the length reported to attribute queries. It is read without
	// the entry lock so that stat calls never wait on a running transcode.
	size atomic.Int64
}

func newEntry(name, source string, limit int64) *Entry {
	e := &Entry{
		name:   name,
		source: source,
		status: types.StatusEmpty,
		buf:    NewBuffer(limit),
	}
	e.size.Store(types.SizeUnknown)
	return e
}

// Name returns the virtual path of the entry.
func (e *Entry) Name() string {
	return e.name
}

// Source returns the source path the entry is transcoded from.
func (e *Entry) Source() string {
	return e.source
}

// Lock acquires the entry lock.
func (e *Entry) Lock() {
	e.mu.Lock()
}

// Unlock releases the entry lock.
func (e *Entry) Unlock() {
	e.mu.Unlock()
}

// TryLock acquires the entry lock without blocking and reports success.
func (e *Entry) TryLock() bool {
	return e.mu.TryLock()
}

// Size returns the size to report for the virtual file: the transcoded
// length once ready, types.SizeUnknown before that.
func (e *Entry) Size() int64 {
	return e.size.Load()
}

// Status returns the materialization state. Caller must hold the lock.
func (e *Entry) Status() types.EntryStatus {
	return e.status
}

// Err returns the error of the last failed materialization. Caller must
// hold the lock.
func (e *Entry) Err() error {
	return e.err
}

// Len returns the number of buffered bytes. Caller must hold the lock.
func (e *Entry) Len() int64 {
	return e.buf.Len()
}

// Begin starts a new materialization, discarding any partial output left
// by an earlier failure. Caller must hold the lock.
func (e *Entry) Begin() {
	e.buf.Reset()
	e.err = nil
	e.status = types.StatusMaterializing
}

// Append adds a chunk of transcoded output. Caller must hold the lock.
func (e *Entry) Append(p []byte) error {
	if e.status != types.StatusMaterializing {
		return fmt.Errorf("append to %s entry %s", e.status, e.name)
	}
	return e.buf.Append(p)
}

// Complete ends the materialization started by Begin. A nil err makes the
// buffer authoritative; otherwise the entry is marked failed and its
// partial output dropped. Caller must hold the lock.
func (e *Entry) Complete(err error) {
	if err != nil {
		e.buf.Reset()
		e.err = err
		e.status = types.StatusFailed
		return
	}
	e.status = types.StatusReady
	e.size.Store(e.buf.Len())
}

// ReadAt copies ready content starting at off into dest. It returns 0 at
// or past the end and an error when the entry is not ready. Caller must
// hold the lock.
func (e *Entry) ReadAt(dest []byte, off int64) (int, error) {
	switch e.status {
	case types.StatusReady:
		return e.buf.ReadAt(dest, off), nil
	case types.StatusFailed:
		return 0, e.err
	default:
		return 0, fmt.Errorf("read from %s entry %s", e.status, e.name)
	}
}

// release drops the buffer when the entry is evicted. Caller must hold
// the lock.
func (e *Entry) release() {
	e.buf.Reset()
	e.err = nil
	e.status = types.StatusEmpty
	e.size.Store(types.SizeUnknown)
}
