// Package filesink is the default filesystem-sink collaborator
// (spec.md §6): given a filename and bytes, it writes
// <dir>/<filename>, creating the directory if absent.
package filesink

import (
	"os"
	"path/filepath"
)

// Sink implements node.FileSink by writing into a single directory.
type Sink struct {
	dir string
}

// New returns a Sink that writes completed transfers into dir.
func New(dir string) *Sink {
	return &Sink{dir: dir}
}

// Save implements node.FileSink.
func (s *Sink) Save(filename string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(s.dir, filepath.Base(filename))
	return os.WriteFile(path, data, 0644)
}
