package testutil

import (
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/kvforge/rockyardkv/internal/vfs"
)

// ErrInjectedFault is returned by a FaultFS write once its configured
// trigger fires.
var ErrInjectedFault = errors.New("testutil: injected fault")

// FaultFS wraps a vfs.FS and can be configured to fail or truncate the Nth
// write across the lifetime of the filesystem, simulating the crash points
// exercised by recovery tests.
type FaultFS struct {
	base vfs.FS

	writeCount   atomic.Int64
	failAt       int64 // 0 disables; write count at which to fail
	truncateAt   int64 // 0 disables; write count at which to truncate instead of failing
	truncateKeep int   // bytes to keep of the triggering write when truncating
}

// NewFaultFS wraps base with no faults configured.
func NewFaultFS(base vfs.FS) *FaultFS {
	return &FaultFS{base: base}
}

// FailNthWrite configures the filesystem to return ErrInjectedFault on the
// n-th Write call across all files (1-indexed). n <= 0 disables the fault.
func (fs *FaultFS) FailNthWrite(n int64) {
	fs.failAt = n
}

// TruncateNthWrite configures the n-th Write call (1-indexed) to apply only
// its first keep bytes, simulating a torn write left behind by a crash.
func (fs *FaultFS) TruncateNthWrite(n int64, keep int) {
	fs.truncateAt = n
	fs.truncateKeep = keep
}

func (fs *FaultFS) Create(name string) (vfs.WritableFile, error) {
	f, err := fs.base.Create(name)
	if err != nil {
		return nil, err
	}
	return &faultWritableFile{fs: fs, inner: f}, nil
}

func (fs *FaultFS) Open(name string) (vfs.SequentialFile, error) { return fs.base.Open(name) }

func (fs *FaultFS) OpenRandomAccess(name string) (vfs.RandomAccessFile, error) {
	return fs.base.OpenRandomAccess(name)
}

func (fs *FaultFS) Rename(oldname, newname string) error { return fs.base.Rename(oldname, newname) }
func (fs *FaultFS) Remove(name string) error              { return fs.base.Remove(name) }
func (fs *FaultFS) RemoveAll(path string) error           { return fs.base.RemoveAll(path) }
func (fs *FaultFS) MkdirAll(path string, perm os.FileMode) error {
	return fs.base.MkdirAll(path, perm)
}
func (fs *FaultFS) Stat(name string) (os.FileInfo, error) { return fs.base.Stat(name) }
func (fs *FaultFS) Exists(name string) bool               { return fs.base.Exists(name) }
func (fs *FaultFS) ListDir(path string) ([]string, error) { return fs.base.ListDir(path) }
func (fs *FaultFS) Lock(name string) (io.Closer, error)   { return fs.base.Lock(name) }
func (fs *FaultFS) SyncDir(path string) error             { return fs.base.SyncDir(path) }

// faultWritableFile intercepts Write calls to apply the configured fault.
type faultWritableFile struct {
	fs    *FaultFS
	inner vfs.WritableFile
}

func (w *faultWritableFile) Write(p []byte) (int, error) {
	n := w.fs.writeCount.Add(1)

	if w.fs.truncateAt != 0 && n == w.fs.truncateAt {
		keep := w.fs.truncateKeep
		if keep > len(p) {
			keep = len(p)
		}
		written, err := w.inner.Write(p[:keep])
		if err != nil {
			return written, err
		}
		return written, ErrInjectedFault
	}

	if w.fs.failAt != 0 && n == w.fs.failAt {
		return 0, ErrInjectedFault
	}

	return w.inner.Write(p)
}

func (w *faultWritableFile) Append(data []byte) error {
	_, err := w.Write(data)
	return err
}

func (w *faultWritableFile) Close() error          { return w.inner.Close() }
func (w *faultWritableFile) Sync() error           { return w.inner.Sync() }
func (w *faultWritableFile) Truncate(s int64) error { return w.inner.Truncate(s) }
func (w *faultWritableFile) Size() (int64, error)   { return w.inner.Size() }
