package testutil

import (
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/kvforge/rockyardkv/internal/vfs"
)

// MemFS is an in-memory vfs.FS. It never touches disk, so tests using it run
// fast and leave no state behind between cases.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFile
	dirs  map[string]bool
}

// NewMemFS creates an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{
		files: make(map[string]*memFile),
		dirs:  map[string]bool{"": true, ".": true},
	}
}

type memFile struct {
	mu       sync.Mutex
	data     []byte
	modTime  time.Time
	refCount int
}

type memFileInfo struct {
	name string
	size int64
	mod  time.Time
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() os.FileMode  { return 0644 }
func (fi *memFileInfo) ModTime() time.Time { return fi.mod }
func (fi *memFileInfo) IsDir() bool        { return false }
func (fi *memFileInfo) Sys() any           { return nil }

func (fs *MemFS) Create(name string) (vfs.WritableFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f := &memFile{modTime: time.Time{}}
	fs.files[name] = f
	fs.dirs[path.Dir(name)] = true
	return &memWritableFile{fs: fs, name: name, f: f}, nil
}

func (fs *MemFS) Open(name string) (vfs.SequentialFile, error) {
	fs.mu.Lock()
	f, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memSequentialFile{f: f}, nil
}

func (fs *MemFS) OpenRandomAccess(name string) (vfs.RandomAccessFile, error) {
	fs.mu.Lock()
	f, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memRandomAccessFile{f: f}, nil
}

func (fs *MemFS) Rename(oldname, newname string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[oldname]
	if !ok {
		return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrNotExist}
	}
	fs.files[newname] = f
	delete(fs.files, oldname)
	fs.dirs[path.Dir(newname)] = true
	return nil
}

func (fs *MemFS) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[name]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	delete(fs.files, name)
	return nil
}

func (fs *MemFS) RemoveAll(prefix string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for name := range fs.files {
		if name == prefix || path.Dir(name) == prefix {
			delete(fs.files, name)
		}
	}
	delete(fs.dirs, prefix)
	return nil
}

func (fs *MemFS) MkdirAll(dir string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.dirs[dir] = true
	return nil
}

func (fs *MemFS) Stat(name string) (os.FileInfo, error) {
	fs.mu.Lock()
	f, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &memFileInfo{name: path.Base(name), size: int64(len(f.data)), mod: f.modTime}, nil
}

func (fs *MemFS) Exists(name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.files[name]
	return ok
}

func (fs *MemFS) ListDir(dir string) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var names []string
	for name := range fs.files {
		if path.Dir(name) == dir {
			names = append(names, path.Base(name))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (fs *MemFS) Lock(name string) (io.Closer, error) {
	return memLock{}, nil
}

func (fs *MemFS) SyncDir(dir string) error {
	return nil
}

type memLock struct{}

func (memLock) Close() error { return nil }

type memWritableFile struct {
	fs   *MemFS
	name string
	f    *memFile
}

func (w *memWritableFile) Write(p []byte) (int, error) {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	w.f.data = append(w.f.data, p...)
	w.f.modTime = w.f.modTime.Add(time.Nanosecond)
	return len(p), nil
}

func (w *memWritableFile) Append(data []byte) error {
	_, err := w.Write(data)
	return err
}

func (w *memWritableFile) Close() error { return nil }
func (w *memWritableFile) Sync() error  { return nil }

func (w *memWritableFile) Truncate(size int64) error {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	if int64(len(w.f.data)) < size {
		w.f.data = append(w.f.data, make([]byte, size-int64(len(w.f.data)))...)
	} else {
		w.f.data = w.f.data[:size]
	}
	return nil
}

func (w *memWritableFile) Size() (int64, error) {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	return int64(len(w.f.data)), nil
}

type memSequentialFile struct {
	f   *memFile
	pos int64
}

func (s *memSequentialFile) Read(p []byte) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.pos >= int64(len(s.f.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.f.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *memSequentialFile) Close() error { return nil }

func (s *memSequentialFile) Skip(n int64) error {
	s.pos += n
	return nil
}

type memRandomAccessFile struct {
	f *memFile
}

func (r *memRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if off >= int64(len(r.f.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *memRandomAccessFile) Close() error { return nil }

func (r *memRandomAccessFile) Size() int64 {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	return int64(len(r.f.data))
}
