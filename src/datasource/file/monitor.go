// monitor.go
package file

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor watches the data directory and fires a handler when a dataset
// file is written, so a fresh export triggers a pipeline refresh without
// waiting for the next scheduled run.
type FileMonitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	lastFile string
	lastMod  time.Time
	mu       sync.Mutex
}

func NewFileMonitor(dir string) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		return nil, err
	}

	return &FileMonitor{
		watchDir: dir,
		watcher:  watcher,
	}, nil
}

// isDatasetFile filters events down to the file types the pipeline reads.
func isDatasetFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Watch blocks, invoking handler for each new write to a dataset file.
// Create events count too: tools that export by writing a temp file and
// renaming it into place never emit a Write for the final name.
// Repeated events for the same modification are suppressed.
func (m *FileMonitor) Watch(handler func(string)) error {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isDatasetFile(event.Name) {
				info, err := os.Stat(event.Name)
				if err != nil {
					continue
				}

				m.mu.Lock()
				if info.ModTime().After(m.lastMod) {
					m.lastMod = info.ModTime()
					m.lastFile = event.Name
					go handler(event.Name)
				}
				m.mu.Unlock()
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
