package wptresults

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Follow sends the events of the raw mozlog file at path to the worker while the
// runner writes it. It returns once the shutdown event is read or ctx is done.
func (p *Processor) Follow(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %v", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to add directory %s to watcher: %v", dir, err)
	}
	p.log.Info("Following event log", "path", path)

	t := tail{path: path}
	for {
		stop, err := t.read(p.sendLine)
		if err != nil || stop {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed unexpectedly")
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed unexpectedly")
			}
			p.log.Warn("Watcher error", "err", err)
		}
	}
}

// tail reads the complete lines appended to a file since the last read.
type tail struct {
	path    string
	offset  int64
	partial []byte
}

func (t *tail) read(handle func(line []byte) (stop bool, err error)) (stop bool, err error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil && fi.Size() < t.offset {
		// Truncated, start over.
		t.offset, t.partial = 0, nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return false, err
	}

	r := bufio.NewReader(f)
	for {
		chunk, err := r.ReadBytes('\n')
		t.offset += int64(len(chunk))
		if errors.Is(err, io.EOF) {
			t.partial = append(t.partial, chunk...)
			return false, nil
		}
		if err != nil {
			return false, err
		}

		line := append(t.partial, bytes.TrimRight(chunk, "\r\n")...)
		t.partial = nil
		if stop, err := handle(line); err != nil || stop {
			return stop, err
		}
	}
}
