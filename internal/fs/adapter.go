package fs

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ajaxzhan/gstfs/internal/cache"
	"github.com/ajaxzhan/gstfs/internal/logging"
	"github.com/ajaxzhan/gstfs/internal/transcode"
	"github.com/ajaxzhan/gstfs/pkg/types"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// Adapter implements the filesystem operations on virtual paths. Target
// files are served from the cache, everything else is read from the source
// directory.
//
// Eviction only try-locks entries, so the adapter may consult the registry
// while holding an entry lock without deadlocking against it.
type Adapter struct {
	mapper   *Mapper
	registry *cache.Registry
	orch     *transcode.Orchestrator
}

// NewAdapter wires a mapper, registry and orchestrator for cfg.
func NewAdapter(cfg types.MountConfig, engine transcode.Engine, timeout time.Duration) *Adapter {
	mapper := NewMapper(cfg)
	return &Adapter{
		mapper:   mapper,
		registry: cache.NewRegistry(mapper, cfg.MaxCacheEntries, cfg.MaxEntryBytes),
		orch:     transcode.NewOrchestrator(engine, cfg.Pipeline, timeout),
	}
}

// Mapper returns the path mapper.
func (a *Adapter) Mapper() *Mapper {
	return a.mapper
}

// Registry returns the cache registry.
func (a *Adapter) Registry() *cache.Registry {
	return a.registry
}

// Getattr stats the source of path. For a cacheable path the size is
// replaced with the entry size, which stays at types.SizeUnknown until
// the first successful transcode.
func (a *Adapter) Getattr(path string, st *syscall.Stat_t) syscall.Errno {
	if err := syscall.Stat(a.mapper.SourcePath(path), st); err != nil {
		return toErrno(err)
	}
	if st.Mode&syscall.S_IFMT != syscall.S_IFREG {
		return fs.OK
	}
	if e, err := a.registry.LookupOrCreate(path); err == nil {
		st.Size = e.Size()
	}
	return fs.OK
}

// Open prepares path for reading. A cacheable path is transcoded unless
// its entry is already ready; this blocks until the transcode finishes.
func (a *Adapter) Open(ctx context.Context, path string) syscall.Errno {
	source, ok := a.mapper.Cacheable(path)
	if !ok {
		return openSource(a.mapper.SourcePath(path))
	}
	// A missing source must not take a cache slot.
	if _, err := os.Stat(source); err != nil {
		return toErrno(err)
	}

	e, err := a.lockEntry(path)
	if err != nil {
		return toErrno(err)
	}
	defer e.Unlock()
	return toErrno(a.orch.Materialize(ctx, e))
}

// Read copies up to len(dest) bytes of path at off into dest and returns
// the count, 0 at or past the end.
func (a *Adapter) Read(ctx context.Context, path string, dest []byte, off int64) (int, syscall.Errno) {
	if off < 0 {
		return 0, syscall.EINVAL
	}

	source, ok := a.mapper.Cacheable(path)
	if !ok {
		return readSource(a.mapper.SourcePath(path), dest, off)
	}
	if _, err := os.Stat(source); err != nil {
		return 0, toErrno(err)
	}

	e, err := a.lockEntry(path)
	if err != nil {
		return 0, toErrno(err)
	}
	defer e.Unlock()

	switch status := e.Status(); {
	case status.Servable():
	case status == types.StatusFailed:
		return 0, toErrno(e.Err())
	default:
		// Evicted between open and read.
		if err := a.orch.Materialize(ctx, e); err != nil {
			return 0, toErrno(err)
		}
	}

	n, err := e.ReadAt(dest, off)
	if err != nil {
		return 0, toErrno(err)
	}
	return n, fs.OK
}

// lockEntry returns the entry for path with its lock held.
func (a *Adapter) lockEntry(path string) (*cache.Entry, error) {
	e, err := a.registry.LookupOrCreate(path)
	if err != nil {
		return nil, err
	}
	return a.relock(path, e)
}

// relock locks e and returns it if it is still registered for path. An
// entry evicted between lookup and lock is orphaned: anything materialized
// into it would be dropped, so the lookup is repeated for the current entry.
func (a *Adapter) relock(path string, e *cache.Entry) (*cache.Entry, error) {
	for {
		e.Lock()
		if cur, ok := a.registry.Peek(path); ok && cur == e {
			return e, nil
		}
		e.Unlock()

		logging.Debug("cache entry evicted before lock, retrying", logging.String("path", path))
		var err error
		if e, err = a.registry.LookupOrCreate(path); err != nil {
			return nil, err
		}
	}
}

// Readdir lists the source directory behind path with source extensions
// rewritten to the target extension. When a rewritten name collides with
// an existing one only the first is listed.
func (a *Adapter) Readdir(path string) ([]fuse.DirEntry, syscall.Errno) {
	dir := a.mapper.SourcePath(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, toErrno(err)
	}

	seen := make(map[string]struct{}, len(entries))
	result := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		name := a.mapper.DisplayName(entry.Name())
		if _, dup := seen[name]; dup {
			logging.Debug("duplicate listing name skipped",
				logging.String("dir", path),
				logging.String("name", name),
				logging.String("source", entry.Name()),
			)
			continue
		}
		seen[name] = struct{}{}

		result = append(result, fuse.DirEntry{
			Name: name,
			Mode: direntMode(filepath.Join(dir, entry.Name()), entry),
		})
	}
	return result, fs.OK
}

// Access checks mask against the source of path.
func (a *Adapter) Access(path string, mask uint32) syscall.Errno {
	return toErrno(unix.Access(a.mapper.SourcePath(path), mask))
}

// Statfs reports the filesystem statistics of the source of path.
func (a *Adapter) Statfs(path string, out *syscall.Statfs_t) syscall.Errno {
	return toErrno(syscall.Statfs(a.mapper.SourcePath(path), out))
}

// Stats returns the cache counters together with the transcode counters.
func (a *Adapter) Stats() types.CacheStats {
	stats := a.registry.Stats()
	stats.Materializations, stats.Failures = a.orch.Stats()
	return stats
}

// direntMode returns the listing type of a source entry. Symlinks are
// reported as the type they point to, matching what lookup returns.
func direntMode(path string, entry os.DirEntry) uint32 {
	t := entry.Type()
	if t&os.ModeSymlink != 0 {
		info, err := os.Stat(path)
		if err != nil {
			return fuse.S_IFLNK
		}
		t = info.Mode().Type()
	}
	switch {
	case t.IsDir():
		return fuse.S_IFDIR
	case t&os.ModeNamedPipe != 0:
		return syscall.S_IFIFO
	case t&os.ModeSocket != 0:
		return syscall.S_IFSOCK
	case t&os.ModeCharDevice != 0:
		return syscall.S_IFCHR
	case t&os.ModeDevice != 0:
		return syscall.S_IFBLK
	default:
		return fuse.S_IFREG
	}
}

// openSource checks that a passthrough file can be opened for reading.
func openSource(path string) syscall.Errno {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return toErrno(err)
	}
	unix.Close(fd)
	return fs.OK
}

// readSource reads a passthrough file at off.
func readSource(path string, dest []byte, off int64) (int, syscall.Errno) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, toErrno(err)
	}
	defer unix.Close(fd)

	n, err := unix.Pread(fd, dest, off)
	if err != nil {
		logging.Warn("passthrough read failed", logging.String("source", path), logging.Err(err))
		return 0, toErrno(err)
	}
	return n, fs.OK
}
