// Package nfsmount serves a read-only view of a document over NFSv3.
// It renders the document into a Snapshot and adapts that to
// billy.Filesystem for willscott/go-nfs.
package nfsmount

import (
	"errors"
	"os"
	"path"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
)

var errReadOnly = errors.New("read-only filesystem")

// DocFS serves the current Snapshot. Swap replaces it between passes while
// clients keep reading.
type DocFS struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewDocFS(initial *Snapshot) *DocFS {
	return &DocFS{snap: initial}
}

// Swap installs a newer snapshot.
func (fs *DocFS) Swap(s *Snapshot) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.snap = s
}

func (fs *DocFS) current() *Snapshot {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.snap
}

// --- billy.Basic ---

func (fs *DocFS) Create(string) (billy.File, error) { return nil, errReadOnly }

func (fs *DocFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *DocFS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, &os.PathError{Op: "open", Path: filename, Err: errReadOnly}
	}
	e, ok := fs.current().lookup(filename)
	if !ok {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
	}
	if e.dir {
		return nil, &os.PathError{Op: "open", Path: filename, Err: errors.New("is a directory")}
	}
	return newReadFile(filename, e.data), nil
}

func (fs *DocFS) Stat(filename string) (os.FileInfo, error) { return fs.Lstat(filename) }

func (fs *DocFS) Rename(string, string) error { return errReadOnly }
func (fs *DocFS) Remove(string) error         { return errReadOnly }

func (fs *DocFS) Join(elem ...string) string { return path.Join(elem...) }

// --- billy.TempFile ---

func (fs *DocFS) TempFile(string, string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *DocFS) ReadDir(p string) ([]os.FileInfo, error) {
	p = cleanPath(p)
	snap := fs.current()
	e, ok := snap.lookup(p)
	if !ok {
		return nil, &os.PathError{Op: "readdir", Path: p, Err: os.ErrNotExist}
	}
	if !e.dir {
		return nil, &os.PathError{Op: "readdir", Path: p, Err: errors.New("not a directory")}
	}
	infos := make([]os.FileInfo, 0, len(e.children))
	for _, c := range e.children {
		ce, _ := snap.lookup(c)
		infos = append(infos, fileInfo(path.Base(c), ce, snap.at))
	}
	return infos, nil
}

func (fs *DocFS) MkdirAll(string, os.FileMode) error { return errReadOnly }

// --- billy.Symlink ---

func (fs *DocFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)
	snap := fs.current()
	e, ok := snap.lookup(filename)
	if !ok {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: os.ErrNotExist}
	}
	return fileInfo(path.Base(filename), e, snap.at), nil
}

func (fs *DocFS) Symlink(string, string) error { return billy.ErrNotSupported }

func (fs *DocFS) Readlink(string) (string, error) { return "", billy.ErrNotSupported }

// --- billy.Chroot ---

func (fs *DocFS) Chroot(p string) (billy.Filesystem, error) { return chroot.New(fs, p), nil }

func (fs *DocFS) Root() string { return "/" }

// --- billy.Capable ---

func (fs *DocFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

func fileInfo(name string, e *entry, at time.Time) os.FileInfo {
	if e.dir {
		return &staticFileInfo{name: name, mode: os.ModeDir | 0o555, modTime: at}
	}
	return &staticFileInfo{name: name, size: int64(len(e.data)), mode: 0o444, modTime: at}
}

type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() any           { return nil }

var (
	_ billy.Filesystem = (*DocFS)(nil)
	_ billy.Capable    = (*DocFS)(nil)
)
