package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File appends messages as JSON lines to <dir>/<topic>.jsonl.
type File struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
	bufs  map[string]*bufio.Writer
}

func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, fmt.Errorf("file sink: empty path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &File{dir: dir, files: map[string]*os.File{}, bufs: map[string]*bufio.Writer{}}, nil
}

func (f *File) WriteMessage(topic string, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bw, ok := f.bufs[topic]
	if !ok {
		name := strings.NewReplacer("/", "_", "\\", "_").Replace(topic) + ".jsonl"
		file, err := os.OpenFile(filepath.Join(f.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		bw = bufio.NewWriter(file)
		f.files[topic] = file
		f.bufs[topic] = bw
	}
	if _, err := bw.Write(msg); err != nil {
		return err
	}
	return bw.WriteByte('\n')
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for topic, file := range f.files {
		if err := f.bufs[topic].Flush(); err != nil && first == nil {
			first = err
		}
		if err := file.Close(); err != nil && first == nil {
			first = err
		}
	}
	f.files = map[string]*os.File{}
	f.bufs = map[string]*bufio.Writer{}
	return first
}
