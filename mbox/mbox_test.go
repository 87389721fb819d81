package mbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dhcgn/mail-thread-digest/filter"
	"github.com/dhcgn/mail-thread-digest/model"
)

const testMbox = "From alice@example.com Mon Jan 28 09:00:00 2002\n" +
	"Message-ID: <a1@example.com>\n" +
	"From: Alice <alice@example.com>\n" +
	"To: bob@example.com\n" +
	"Subject: Budget\n" +
	"Date: Mon, 28 Jan 2002 09:00:00 +0000\n" +
	"Content-Type: text/plain; charset=utf-8\n" +
	"Content-Transfer-Encoding: quoted-printable\n" +
	"\n" +
	"Hi Bob,=20please review the caf=C3=A9 budget.\n" +
	"\n" +
	"From bob@example.com Tue Jan 29 10:15:00 2002\n" +
	"Message-ID: <b2@example.com>\n" +
	"In-Reply-To: <a1@example.com>\n" +
	"References: <a1@example.com>\n" +
	"From: Bob <bob@example.com>\n" +
	"Subject: Re: Budget\n" +
	"Date: Tue, 29 Jan 2002 10:15:00 +0000\n" +
	"MIME-Version: 1.0\n" +
	"Content-Type: multipart/alternative; boundary=\"xyz\"\n" +
	"\n" +
	"--xyz\n" +
	"Content-Type: text/html; charset=utf-8\n" +
	"\n" +
	"<p>Looks <b>good</b>.</p>\n" +
	"--xyz--\n" +
	"\n" +
	"From carol@example.com Wed Jan 30 08:00:00 2002\n" +
	"From: Carol <carol@example.com>\n" +
	"Subject: no ids at all\n" +
	"\n" +
	"orphan\n"

func streamAll(t *testing.T, opts Options) ([]model.MessageRecord, []error) {
	t.Helper()

	reader, err := NewReader(opts, nil)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}

	out := make(chan model.Envelope, 10)
	done := make(chan error, 1)
	go func() {
		done <- reader.Stream(context.Background(), out)
		close(out)
	}()

	var records []model.MessageRecord
	var errs []error
	for env := range out {
		if env.Err != nil {
			errs = append(errs, env.Err)
			continue
		}
		records = append(records, env.Record)
	}

	if err := <-done; err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	return records, errs
}

func TestStream(t *testing.T) {
	records, errs := streamAll(t, Options{Source: strings.NewReader(testMbox)})

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error envelope for the message without ids, got %d", len(errs))
	}

	first := records[0]
	if first.ThreadID != "a1@example.com" {
		t.Errorf("first ThreadID = %q", first.ThreadID)
	}
	if !first.Timestamp.Equal(time.Date(2002, 1, 28, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("first Timestamp = %v", first.Timestamp)
	}
	if !strings.HasPrefix(first.Body, "Date: Mon, 28 Jan 2002 09:00:00 +0000\n") {
		t.Errorf("first Body should start with the Date line, got %q", first.Body)
	}
	if !strings.Contains(first.Body, "please review the café budget.") {
		t.Errorf("first Body not decoded: %q", first.Body)
	}

	second := records[1]
	if second.ThreadID != "a1@example.com" {
		t.Errorf("reply should join the thread via References, got %q", second.ThreadID)
	}
	if !strings.Contains(second.Body, "Looks") || !strings.Contains(second.Body, "good") {
		t.Errorf("html part not rendered as text: %q", second.Body)
	}
	if strings.Contains(second.Body, "<b>") {
		t.Errorf("html tags left in body: %q", second.Body)
	}
}

func TestStreamWithFilters(t *testing.T) {
	tests := []struct {
		name          string
		filter        filter.Options
		expectedCount int
	}{
		{
			name:          "no filters",
			expectedCount: 2,
		},
		{
			name:          "include header subject",
			filter:        filter.Options{IncludeHeader: []string{"Subject: Re:"}},
			expectedCount: 1,
		},
		{
			name:          "exclude body",
			filter:        filter.Options{ExcludeBody: []string{"caf=C3=A9"}},
			expectedCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, _ := streamAll(t, Options{Source: strings.NewReader(testMbox), Filter: tt.filter})
			if len(records) != tt.expectedCount {
				t.Errorf("Expected %d records, got %d", tt.expectedCount, len(records))
			}
		})
	}
}

func TestNewReader_EmptyPath(t *testing.T) {
	if _, err := NewReader(Options{}, nil); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestStream_CancelledContext(t *testing.T) {
	reader, err := NewReader(Options{Source: strings.NewReader(testMbox)}, nil)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := reader.Stream(ctx, make(chan model.Envelope)); err == nil {
		t.Error("Expected context error")
	}
}

func TestParseMessage_ThreadIDPrecedence(t *testing.T) {
	raw := "X-GM-THRID: 1234567890\n" +
		"Message-ID: <m@example.com>\n" +
		"References: <root@example.com>\n" +
		"Subject: hi\n" +
		"\n" +
		"body\n"

	rec, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if rec.ThreadID != "1234567890" {
		t.Errorf("ThreadID = %q, want gmail thread id", rec.ThreadID)
	}
	if !rec.Timestamp.IsZero() {
		t.Errorf("Timestamp should be zero without a Date header, got %v", rec.Timestamp)
	}
}
