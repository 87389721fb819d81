package mbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/jaytaylor/html2text"

	"github.com/dhcgn/mail-thread-digest/filter"
	"github.com/dhcgn/mail-thread-digest/model"
)

var ErrMessageIDMissing = errors.New("mbox message has no thread or message id")

type Options struct {
	Path   string
	Filter filter.Options
	// Source overrides Path when set.
	Source io.Reader
}

type Reader interface {
	Stream(ctx context.Context, out chan<- model.Envelope) error
}

func NewReader(opts Options, logger *slog.Logger) (Reader, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" && opts.Source == nil {
		return nil, fmt.Errorf("mbox path is empty")
	}

	f, err := filter.New(opts.Filter)
	if err != nil {
		return nil, err
	}

	return &fileReader{
		path:   path,
		source: opts.Source,
		filter: f,
		logger: logger,
	}, nil
}

type fileReader struct {
	path   string
	source io.Reader
	filter *filter.Filter
	logger *slog.Logger
}

func (f *fileReader) open() (io.Reader, func(), error) {
	if f.source != nil {
		return f.source, func() {}, nil
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open mbox: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

// Stream emits one envelope per message. Unreadable messages are emitted
// as error envelopes and skipped; only I/O failures on the archive stop the
// stream.
func (f *fileReader) Stream(ctx context.Context, out chan<- model.Envelope) error {
	src, closeFn, err := f.open()
	if err != nil {
		return err
	}
	defer closeFn()

	reader := mboxlib.NewReader(src)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		header, body := filter.SplitRawMessage(raw)
		if !f.filter.Allows(header, body) {
			continue
		}

		rec, err := ParseMessage(raw)
		if err != nil {
			if err := f.emitError(ctx, out, fmt.Errorf("message %d: %w", idx, err)); err != nil {
				return err
			}
			continue
		}

		if err := f.emitEnvelope(ctx, out, model.Envelope{Record: rec}); err != nil {
			return err
		}
	}
}

func (f *fileReader) emitError(ctx context.Context, out chan<- model.Envelope, err error) error {
	if f.logger != nil {
		f.logger.Warn("mbox message skipped", "path", f.path, "err", err)
	}
	return f.emitEnvelope(ctx, out, model.Envelope{Err: err})
}

func (f *fileReader) emitEnvelope(ctx context.Context, out chan<- model.Envelope, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- env:
		return nil
	}
}

// ParseMessage turns one RFC 5322 message into a record. The record body
// starts with Date, From and Subject lines so the sent date can be
// recovered from the text alone.
func ParseMessage(raw []byte) (model.MessageRecord, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return model.MessageRecord{}, fmt.Errorf("parse: %w", err)
	}
	defer mr.Close() //nolint:errcheck

	threadID := threadIDOf(mr.Header)
	if threadID == "" {
		return model.MessageRecord{}, ErrMessageIDMissing
	}

	text, err := bodyText(mr)
	if err != nil {
		return model.MessageRecord{}, err
	}

	var timestamp time.Time
	if t, err := mr.Header.Date(); err == nil {
		timestamp = t
	}
	subject, err := mr.Header.Subject()
	if err != nil {
		subject = mr.Header.Get("Subject")
	}

	var sb strings.Builder
	for _, line := range [][2]string{
		{"Date", mr.Header.Get("Date")},
		{"From", mr.Header.Get("From")},
		{"Subject", subject},
	} {
		if line[1] == "" {
			continue
		}
		sb.WriteString(line[0])
		sb.WriteString(": ")
		sb.WriteString(line[1])
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(text)

	return model.MessageRecord{
		ThreadID:  threadID,
		Timestamp: timestamp,
		Body:      sb.String(),
	}, nil
}

func threadIDOf(h mail.Header) string {
	if id := strings.TrimSpace(h.Get("X-GM-THRID")); id != "" {
		return id
	}
	for _, key := range []string{"References", "In-Reply-To"} {
		if ids, err := h.MsgIDList(key); err == nil && len(ids) > 0 {
			return ids[0]
		}
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		return id
	}
	return strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
}

// bodyText prefers the first text/plain part and falls back to the first
// text/html part rendered as text.
func bodyText(mr *mail.Reader) (string, error) {
	var plain, html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			if plain != "" || html != "" {
				break
			}
			return "", fmt.Errorf("read part: %w", err)
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		b, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case (contentType == "" || strings.HasPrefix(contentType, "text/plain")) && plain == "":
			plain = string(b)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			if t, err := html2text.FromString(string(b), html2text.Options{OmitLinks: true, TextOnly: true}); err == nil {
				html = t
			}
		}
	}

	if plain != "" {
		return strings.TrimSpace(plain), nil
	}
	return strings.TrimSpace(html), nil
}

// CountMessages counts the messages in an mbox archive without parsing them.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, err
		}
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}
