package nfsmount

import (
	"bytes"

	billy "github.com/go-git/go-billy/v5"
)

// readFile is a billy.File over one snapshot file. Snapshots are immutable,
// so the bytes are shared rather than copied.
type readFile struct {
	name string
	*bytes.Reader
}

func newReadFile(name string, data []byte) *readFile {
	return &readFile{name: name, Reader: bytes.NewReader(data)}
}

func (f *readFile) Name() string              { return f.name }
func (f *readFile) Write([]byte) (int, error) { return 0, errReadOnly }
func (f *readFile) Truncate(int64) error      { return errReadOnly }
func (f *readFile) Lock() error               { return nil }
func (f *readFile) Unlock() error             { return nil }
func (f *readFile) Close() error              { return nil }

var _ billy.File = (*readFile)(nil)
