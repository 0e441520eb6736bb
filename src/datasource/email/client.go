// client.go
package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

const (
	// MaxFetchMessages bounds a single fetch so a busy mailbox cannot
	// exhaust memory.
	MaxFetchMessages = 100
	FetchBufferSize  = 10
	// RecentMailDuration is how far back the unread search looks.
	RecentMailDuration = 24 * time.Hour
)

// MailService is the mailbox access the ingestion flow needs. The concrete
// client talks IMAP; tests substitute a fake.
type MailService interface {
	Connect() error
	Disconnect()
	FetchUnreadEmails() ([]*Email, error)
}

// Email is one fetched message with its attachments decoded.
type Email struct {
	UID         uint32
	Date        time.Time
	From        string
	Subject     string
	Attachments []*Attachment
}

// Attachment carries one attachment's decoded filename and raw bytes.
type Attachment struct {
	Filename string
	Content  []byte
}

// Client is the IMAP implementation of MailService. All methods are safe
// for concurrent use.
type Client struct {
	server   string // address with port, e.g. "imap.example.com:993"
	username string
	password string

	mu        sync.Mutex
	imap      *client.Client
	connected bool
}

func NewClient(server, username, password string) *Client {
	return &Client{
		server:   server,
		username: username,
		password: password,
	}
}

// Connect dials the server over TLS and logs in. A live connection is
// reused; a stale one is replaced.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		if _, err := c.imap.Capability(); err == nil {
			return nil
		}
		c.imap.Logout()
		c.imap = nil
		c.connected = false
	}

	conn, err := client.DialTLS(c.server, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.server, err)
	}
	if err := conn.Login(c.username, c.password); err != nil {
		conn.Logout()
		return fmt.Errorf("login as %s: %w", c.username, err)
	}

	c.imap = conn
	c.connected = true
	return nil
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.imap != nil {
		c.imap.Logout()
		c.imap = nil
	}
	c.connected = false
}

// FetchUnreadEmails returns the unread messages of the last day, newest
// capped at MaxFetchMessages.
func (c *Client) FetchUnreadEmails() ([]*Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}

	if _, err := c.imap.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-RecentMailDuration)

	ids, err := c.imap.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search inbox: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxFetchMessages {
		ids = ids[:MaxFetchMessages]
	}

	return c.fetchMessages(ids)
}

func (c *Client) fetchMessages(ids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, FetchBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- c.imap.Fetch(seqset, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		parsed, err := parseEmail(msg, section)
		if err != nil {
			continue // one bad message must not fail the batch
		}
		emails = append(emails, parsed)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return emails, nil
}

func parseEmail(msg *imap.Message, section *imap.BodySectionName) (*Email, error) {
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("message %d has no body", msg.Uid)
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("read message %d: %w", msg.Uid, err)
	}

	header := mr.Header
	date, _ := header.Date()

	parsed := &Email{
		UID:     msg.Uid,
		Date:    date,
		From:    decodeHeader(header.Get("From")),
		Subject: decodeHeader(header.Get("Subject")),
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil || filename == "" {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, p.Body); err != nil {
			continue
		}
		parsed.Attachments = append(parsed.Attachments, &Attachment{
			Filename: decodeHeader(filename),
			Content:  buf.Bytes(),
		})
	}
	return parsed, nil
}

// decodeHeader handles the =?charset?encoding?text?= header form; on any
// decode failure the raw header is kept.
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// LatestMatching picks the newest message whose subject contains the
// keyword, or nil.
func LatestMatching(emails []*Email, keyword string) *Email {
	var matched []*Email
	for _, e := range emails {
		if strings.Contains(e.Subject, keyword) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})
	return matched[0]
}
