package email

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"DeliveryAnalytics/src/storage"
)

type fakeMailService struct {
	emails []*Email
}

func (f *fakeMailService) Connect() error { return nil }

func (f *fakeMailService) Disconnect() {}

func (f *fakeMailService) FetchUnreadEmails() ([]*Email, error) { return f.emails, nil }

func newTestLogger(t *testing.T) *storage.Logger {
	t.Helper()
	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "test.log"))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestCheckAndProcessEmailsSavesDataset(t *testing.T) {
	dir := t.TempDir()
	logger := newTestLogger(t)

	ms := &fakeMailService{emails: []*Email{
		{
			UID:     7,
			Date:    time.Now(),
			Subject: "weekly delivery dataset",
			Attachments: []*Attachment{
				{Filename: "orders.csv", Content: []byte("Order_ID\nO1\n")},
				{Filename: "notes.txt", Content: []byte("ignore me")},
			},
		},
	}}

	handler := NewDatasetHandler(dir, logger)
	saved, err := CheckAndProcessEmails(ms, handler, "dataset", logger)
	if err != nil {
		t.Fatalf("CheckAndProcessEmails: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("saved = %v, want one csv", saved)
	}

	data, err := os.ReadFile(saved[0])
	if err != nil || string(data) != "Order_ID\nO1\n" {
		t.Errorf("saved content = %q, err = %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); !os.IsNotExist(err) {
		t.Error("non-dataset attachment was saved")
	}
}

func TestHandlerSkipsProcessedUID(t *testing.T) {
	dir := t.TempDir()
	handler := NewDatasetHandler(dir, newTestLogger(t))

	e := &Email{
		UID:         9,
		Attachments: []*Attachment{{Filename: "orders.csv", Content: []byte("x")}},
	}

	first, err := handler.Handle(e)
	if err != nil || len(first) != 1 {
		t.Fatalf("first pass = %v, %v", first, err)
	}
	second, err := handler.Handle(e)
	if err != nil || len(second) != 0 {
		t.Errorf("second pass = %v, %v, want no work", second, err)
	}
}

func TestLatestMatching(t *testing.T) {
	old := &Email{Subject: "dataset v1", Date: time.Now().Add(-time.Hour)}
	fresh := &Email{Subject: "dataset v2", Date: time.Now()}
	other := &Email{Subject: "lunch?", Date: time.Now()}

	got := LatestMatching([]*Email{old, fresh, other}, "dataset")
	if got != fresh {
		t.Errorf("got %+v, want the newest dataset mail", got)
	}
	if LatestMatching([]*Email{other}, "dataset") != nil {
		t.Error("matched a non-dataset subject")
	}
}
