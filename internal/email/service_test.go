package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type sentMessage struct {
	addr string
	from string
	to   []string
	body string
}

func newTestService(config Config) (*Service, *[]sentMessage) {
	var sent []sentMessage
	s := NewService(config, zerolog.Nop())
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMessage{addr: addr, from: from, to: to, body: string(msg)})
		return nil
	}
	return s, &sent
}

func configured() Config {
	return Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "Docdiff"}
}

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   bool
	}{
		{"fully configured", configured(), true},
		{"missing host", Config{Port: "587", From: "noreply@example.com"}, false},
		{"missing port", Config{Host: "smtp.example.com", From: "noreply@example.com"}, false},
		{"missing from", Config{Host: "smtp.example.com", Port: "587"}, false},
		{"empty config", Config{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(tt.config, zerolog.Nop())
			if got := s.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendHTMLEmailNotConfigured(t *testing.T) {
	s, sent := newTestService(Config{})
	err := s.SendHTMLEmail(context.Background(), []string{"a@example.com"}, "s", "t", "<p>h</p>")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SendHTMLEmail() error = %v, want %v", err, ErrNotConfigured)
	}
	if len(*sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(*sent))
	}
}

func TestSendHTMLEmail(t *testing.T) {
	s, sent := newTestService(configured())
	err := s.SendHTMLEmail(context.Background(), []string{"a@example.com", "b@example.com"}, "Hello", "plain body", "<p>html body</p>")
	if err != nil {
		t.Fatalf("SendHTMLEmail() error = %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(*sent))
	}
	msg := (*sent)[0]
	if msg.addr != "smtp.example.com:587" || msg.from != "noreply@example.com" {
		t.Errorf("envelope = %s from %s", msg.addr, msg.from)
	}
	for _, want := range []string{
		"To: a@example.com, b@example.com\r\n",
		"From: Docdiff <noreply@example.com>\r\n",
		"Subject: Hello\r\n",
		"multipart/alternative",
		"Content-Type: text/plain; charset=UTF-8\r\n\r\nplain body",
		"Content-Type: text/html; charset=UTF-8\r\n\r\n<p>html body</p>",
	} {
		if !strings.Contains(msg.body, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendHTMLEmailCanceled(t *testing.T) {
	s, sent := newTestService(configured())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendHTMLEmail(ctx, []string{"a@example.com"}, "s", "t", "h"); !errors.Is(err, context.Canceled) {
		t.Errorf("SendHTMLEmail() error = %v, want %v", err, context.Canceled)
	}
	if len(*sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(*sent))
	}
}

func TestSendDocumentUpdated(t *testing.T) {
	tests := []struct {
		name    string
		update  DocumentUpdate
		want    []string
		notWant []string
	}{
		{
			name: "with diff",
			update: DocumentUpdate{
				Title:    "Roadmap",
				URL:      "https://docs.example.com/d/1",
				Actor:    "Sam",
				DiffHTML: `<p><ins data-operation-index="0">new</ins></p>`,
				HasDiff:  true,
			},
			want: []string{
				`Sam updated <strong>Roadmap</strong>`,
				`<p><ins data-operation-index="0">new</ins></p>`,
				`href="https://docs.example.com/d/1"`,
			},
		},
		{
			name: "link only",
			update: DocumentUpdate{
				Title:      "Roadmap",
				URL:        "https://docs.example.com/d/1",
				RevisionID: "abc123",
				DiffHTML:   "<p>ignored</p>",
			},
			want:    []string{"Someone updated", "Revision abc123."},
			notWant: []string{`class="diff"`, "<p>ignored</p>"},
		},
		{
			name:   "title is escaped",
			update: DocumentUpdate{Title: "<script>x</script>", URL: "https://docs.example.com/d/1"},
			want:   []string{"<strong>&lt;script&gt;x&lt;/script&gt;</strong>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sent := newTestService(configured())
			if err := s.SendDocumentUpdated(context.Background(), []string{"a@example.com"}, tt.update); err != nil {
				t.Fatalf("SendDocumentUpdated() error = %v", err)
			}
			if len(*sent) != 1 {
				t.Fatalf("sent %d messages, want 1", len(*sent))
			}
			body := (*sent)[0].body
			for _, w := range tt.want {
				if !strings.Contains(body, w) {
					t.Errorf("message missing %q", w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(body, w) {
					t.Errorf("message contains %q", w)
				}
			}
		})
	}
}
