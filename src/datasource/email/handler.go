// handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"DeliveryAnalytics/src/storage"
)

// DatasetHandler saves mailed dataset files into the data directory so the
// pipeline can pick them up. Already-processed messages are remembered by
// UID for the life of the process.
type DatasetHandler struct {
	dataDir string
	logger  *storage.Logger

	mu        sync.Mutex
	processed map[uint32]bool
}

func NewDatasetHandler(dataDir string, logger *storage.Logger) *DatasetHandler {
	return &DatasetHandler{
		dataDir:   dataDir,
		logger:    logger,
		processed: make(map[uint32]bool),
	}
}

// Handle writes the message's dataset attachments to disk and returns their
// paths. A message without .csv/.xlsx attachments is a no-op.
func (h *DatasetHandler) Handle(e *Email) ([]string, error) {
	h.mu.Lock()
	if h.processed[e.UID] {
		h.mu.Unlock()
		return nil, nil
	}
	h.processed[e.UID] = true
	h.mu.Unlock()

	if err := os.MkdirAll(h.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var saved []string
	for _, att := range e.Attachments {
		if !isDatasetAttachment(att.Filename) {
			continue
		}
		path := filepath.Join(h.dataDir, filepath.Base(att.Filename))
		if err := os.WriteFile(path, att.Content, 0644); err != nil {
			return saved, fmt.Errorf("save attachment %s: %w", att.Filename, err)
		}
		h.logger.Info(fmt.Sprintf("saved mailed dataset %s (%d bytes)", att.Filename, len(att.Content)))
		saved = append(saved, path)
	}
	return saved, nil
}

func isDatasetAttachment(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// CheckAndProcessEmails runs one mailbox sweep: connect, fetch unread,
// keep the newest message matching the subject keyword, save its dataset
// attachments. Returns the saved file paths.
func CheckAndProcessEmails(ms MailService, handler *DatasetHandler, keyword string, logger *storage.Logger) ([]string, error) {
	start := time.Now()

	if err := ms.Connect(); err != nil {
		return nil, fmt.Errorf("mailbox connect: %w", err)
	}
	defer ms.Disconnect()

	emails, err := ms.FetchUnreadEmails()
	if err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	if len(emails) == 0 {
		return nil, nil
	}

	target := LatestMatching(emails, keyword)
	if target == nil {
		return nil, nil
	}

	saved, err := handler.Handle(target)
	if err != nil {
		return saved, err
	}
	if len(saved) > 0 {
		logger.Info(fmt.Sprintf("mailbox sweep saved %d file(s) in %v", len(saved), time.Since(start).Round(time.Millisecond)))
	}
	return saved, nil
}
