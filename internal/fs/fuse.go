// Package fs provides the FUSE filesystem that mirrors a source directory
// with files of one type presented as transcoded files of another.
package fs

import (
	"context"
	"errors"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ajaxzhan/gstfs/internal/logging"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Errors for TranscodeFS
var (
	ErrInvalidMountPoint = errors.New("invalid mount point")
)

// Options control how the filesystem is mounted.
type Options struct {
	AllowOther   bool          // let other users access the mount
	Debug        bool          // log every FUSE request
	EntryTimeout time.Duration // kernel cache for name lookups
	AttrTimeout  time.Duration // kernel cache for attributes
	Extra        []string      // passed to the kernel as -o options
}

// DefaultOptions returns the mount options used when none are given.
func DefaultOptions() Options {
	return Options{
		EntryTimeout: time.Second,
		AttrTimeout:  time.Second,
	}
}

// TranscodeFS is a read-only FUSE filesystem backed by an Adapter.
type TranscodeFS struct {
	adapter    *Adapter
	mountPoint string
	opts       Options
	server     *fuse.Server
	mounted    atomic.Bool
	mu         sync.Mutex
}

// NewTranscodeFS creates a filesystem to be mounted at mountPoint.
func NewTranscodeFS(adapter *Adapter, mountPoint string, opts Options) (*TranscodeFS, error) {
	if mountPoint == "" {
		return nil, ErrInvalidMountPoint
	}
	info, err := os.Stat(mountPoint)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrInvalidMountPoint
	}

	return &TranscodeFS{
		adapter:    adapter,
		mountPoint: mountPoint,
		opts:       opts,
	}, nil
}

// Mount mounts the FUSE filesystem. It blocks until the context is cancelled.
func (tfs *TranscodeFS) Mount(ctx context.Context) error {
	root := &dirNode{tfs: tfs, path: "/"}

	// Attribute timeouts are set per node, see attrTimeout.
	entryTimeout := tfs.opts.EntryTimeout
	opts := &fs.Options{
		EntryTimeout: &entryTimeout,
		MountOptions: fuse.MountOptions{
			AllowOther: tfs.opts.AllowOther,
			FsName:     tfs.adapter.Mapper().SourceDir(),
			Name:       "gstfs",
			Debug:      tfs.opts.Debug,
			Options:    append([]string{"ro"}, tfs.opts.Extra...),
		},
	}

	server, err := fs.Mount(tfs.mountPoint, root, opts)
	if err != nil {
		return err
	}

	tfs.mu.Lock()
	tfs.server = server
	tfs.mounted.Store(true)
	tfs.mu.Unlock()

	logging.Info("filesystem mounted",
		logging.String("mount_point", tfs.mountPoint),
		logging.String("source", tfs.adapter.Mapper().SourceDir()),
	)

	// Wait for context cancellation
	<-ctx.Done()

	if err := server.Unmount(); err != nil {
		return err
	}
	tfs.mounted.Store(false)
	logging.Info("filesystem unmounted", logging.String("mount_point", tfs.mountPoint))

	return ctx.Err()
}

// IsMounted returns true if the filesystem is currently mounted.
func (tfs *TranscodeFS) IsMounted() bool {
	return tfs.mounted.Load()
}

// Adapter returns the adapter serving the mount.
func (tfs *TranscodeFS) Adapter() *Adapter {
	return tfs.adapter
}

// attrTimeout returns how long the kernel may cache attributes of p.
// Target files are never cached since their size changes on first open.
func (tfs *TranscodeFS) attrTimeout(p string) time.Duration {
	if tfs.adapter.Mapper().IsTargetExtension(p) {
		return 0
	}
	return tfs.opts.AttrTimeout
}

// dirNode is a directory, the root included.
type dirNode struct {
	fs.Inode
	tfs  *TranscodeFS
	path string
}

var _ = (fs.NodeLookuper)((*dirNode)(nil))
var _ = (fs.NodeReaddirer)((*dirNode)(nil))
var _ = (fs.NodeGetattrer)((*dirNode)(nil))
var _ = (fs.NodeAccesser)((*dirNode)(nil))
var _ = (fs.NodeStatfser)((*dirNode)(nil))

func (d *dirNode) childPath(name string) string {
	return path.Join(d.path, name)
}

// Getattr implements fs.NodeGetattrer.
func (d *dirNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	var st syscall.Stat_t
	if errno := d.tfs.adapter.Getattr(d.path, &st); errno != fs.OK {
		return errno
	}
	out.FromStat(&st)
	out.SetTimeout(d.tfs.attrTimeout(d.path))
	return fs.OK
}

// Lookup implements fs.NodeLookuper.
func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := d.childPath(name)

	var st syscall.Stat_t
	if errno := d.tfs.adapter.Getattr(p, &st); errno != fs.OK {
		return nil, errno
	}
	out.Attr.FromStat(&st)
	out.SetAttrTimeout(d.tfs.attrTimeout(p))

	var child fs.InodeEmbedder
	mode := st.Mode & syscall.S_IFMT
	if mode == syscall.S_IFDIR {
		child = &dirNode{tfs: d.tfs, path: p}
	} else {
		child = &fileNode{tfs: d.tfs, path: p}
	}

	return d.NewInode(ctx, child, fs.StableAttr{Mode: mode}), fs.OK
}

// Readdir implements fs.NodeReaddirer.
func (d *dirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, errno := d.tfs.adapter.Readdir(d.path)
	if errno != fs.OK {
		return nil, errno
	}
	return fs.NewListDirStream(entries), fs.OK
}

// Access implements fs.NodeAccesser.
func (d *dirNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	return d.tfs.adapter.Access(d.path, mask)
}

// Statfs implements fs.NodeStatfser.
func (d *dirNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	return statfs(d.tfs.adapter, d.path, out)
}

// fileNode is any non-directory entry. Reads go through the adapter on
// every call, so no file handle is kept.
type fileNode struct {
	fs.Inode
	tfs  *TranscodeFS
	path string
}

var _ = (fs.NodeGetattrer)((*fileNode)(nil))
var _ = (fs.NodeOpener)((*fileNode)(nil))
var _ = (fs.NodeReader)((*fileNode)(nil))
var _ = (fs.NodeAccesser)((*fileNode)(nil))
var _ = (fs.NodeStatfser)((*fileNode)(nil))

// Getattr implements fs.NodeGetattrer.
func (f *fileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	var st syscall.Stat_t
	if errno := f.tfs.adapter.Getattr(f.path, &st); errno != fs.OK {
		return errno
	}
	out.FromStat(&st)
	out.SetTimeout(f.tfs.attrTimeout(f.path))
	return fs.OK
}

// Open implements fs.NodeOpener. The mount is read-only. Transcoded files
// bypass the page cache: their reported size changes once transcoding
// finishes and must not clip reads.
func (f *fileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_ACCMODE != syscall.O_RDONLY {
		return nil, 0, syscall.EROFS
	}

	if errno := f.tfs.adapter.Open(ctx, f.path); errno != fs.OK {
		return nil, 0, errno
	}

	if _, ok := f.tfs.adapter.Mapper().Cacheable(f.path); ok {
		return nil, fuse.FOPEN_DIRECT_IO, fs.OK
	}
	return nil, 0, fs.OK
}

// Read implements fs.NodeReader.
func (f *fileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, errno := f.tfs.adapter.Read(ctx, f.path, dest, off)
	if errno != fs.OK {
		return nil, errno
	}
	return fuse.ReadResultData(dest[:n]), fs.OK
}

// Access implements fs.NodeAccesser.
func (f *fileNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	return f.tfs.adapter.Access(f.path, mask)
}

// Statfs implements fs.NodeStatfser.
func (f *fileNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	return statfs(f.tfs.adapter, f.path, out)
}

func statfs(a *Adapter, p string, out *fuse.StatfsOut) syscall.Errno {
	var st syscall.Statfs_t
	if errno := a.Statfs(p, &st); errno != fs.OK {
		return errno
	}
	out.FromStatfsT(&st)
	return fs.OK
}
