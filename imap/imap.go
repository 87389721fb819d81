package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/dhcgn/mail-thread-digest/model"
	"github.com/dhcgn/mail-thread-digest/runner"
	"github.com/dhcgn/mail-thread-digest/stats"
	"github.com/dhcgn/mail-thread-digest/summarize"
)

var ErrMissingThreadID = errors.New("digest thread id is empty")

const (
	HeaderThreadID = "X-Thread-Digest-Id"
	HeaderHash     = "X-Thread-Digest-Hash"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	From               string
	To                 string
	DryRun             bool
	// Redeliver also appends digests answered from the summary store.
	Redeliver bool
}

// Publisher appends one digest email per summarized thread.
type Publisher struct {
	opts       Options
	runner     *runner.Runner
	deliveries <-chan model.Digest
	logger     *slog.Logger
}

func NewPublisher(opts Options, r *runner.Runner, logger *slog.Logger) (*Publisher, error) {
	if !opts.DryRun {
		if opts.Host == "" {
			return nil, fmt.Errorf("imap host is empty")
		}
		if opts.Port <= 0 {
			return nil, fmt.Errorf("imap port must be positive")
		}
	}
	if opts.From == "" {
		opts.From = opts.Username
	}
	if opts.To == "" {
		opts.To = opts.From
	}

	publisher := &Publisher{
		opts:       opts,
		runner:     r,
		deliveries: r.Deliveries(),
		logger:     logger,
	}
	r.AddStage("imap", publisher.run)
	return publisher, nil
}

func (p *Publisher) run(ctx context.Context) error {
	var (
		client  *imapclient.Client
		cleanup func()
	)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case digest, ok := <-p.deliveries:
			if !ok {
				return nil
			}
			if !p.deliverable(digest) {
				continue
			}
			if digest.ThreadID == "" {
				p.runner.EmitEvent(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeError, Err: ErrMissingThreadID})
				continue
			}

			raw, err := BuildDigest(digest, p.opts.From, p.opts.To, time.Now())
			if err != nil {
				p.runner.EmitEvent(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeError, ThreadID: digest.ThreadID, Err: err})
				return err
			}

			if p.opts.DryRun {
				p.runner.EmitEvent(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeDryRunDeliver, ThreadID: digest.ThreadID})
				if p.logger != nil {
					p.logger.Debug("dry-run delivery", "threadID", digest.ThreadID, "target", p.targetFolder(), "bytes", len(raw))
				}
				continue
			}

			if client == nil {
				client, cleanup, err = p.dial(ctx)
				if err != nil {
					p.runner.EmitEvent(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeError, ThreadID: digest.ThreadID, Err: err})
					return err
				}
			}

			if err := p.appendMessage(client, raw, digest.CreatedAt); err != nil {
				err = fmt.Errorf("deliver digest %s: %w", digest.ThreadID, err)
				p.runner.EmitEvent(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeError, ThreadID: digest.ThreadID, Err: err})
				return err
			}

			p.runner.EmitEvent(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeDelivered, ThreadID: digest.ThreadID})
			if p.logger != nil {
				p.logger.Debug("delivered digest", "threadID", digest.ThreadID, "target", p.targetFolder())
			}
		}
	}
}

// deliverable drops digests without a usable summary.
func (p *Publisher) deliverable(d model.Digest) bool {
	if d.Status != summarize.StatusOK.String() {
		return false
	}
	return !d.Cached || p.opts.Redeliver
}

// BuildDigest renders a digest as a plain-text RFC 5322 message.
func BuildDigest(d model.Digest, from, to string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: "Thread Digest", Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject("Thread digest: " + d.ThreadID)
	h.SetMessageID(uuid.NewString() + "@" + domainOf(from))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	h.Set(HeaderThreadID, d.ThreadID)
	h.Set(HeaderHash, d.Hash)

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create digest writer: %w", err)
	}

	body := fmt.Sprintf("Thread: %s\r\nMessages summarized: %d\r\n\r\n%s\r\n", d.ThreadID, d.Messages, d.Summary)
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write digest body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close digest writer: %w", err)
	}
	return buf.Bytes(), nil
}

func domainOf(address string) string {
	if idx := strings.LastIndex(address, "@"); idx >= 0 && idx < len(address)-1 {
		return address[idx+1:]
	}
	return "thread-digest.local"
}

func (p *Publisher) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(p.opts.Host, strconv.Itoa(p.opts.Port))
	options := &imapclient.Options{}

	if p.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         p.opts.Host,
			InsecureSkipVerify: p.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if p.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(p.opts.Username, p.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if err := p.ensureMailbox(client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	if p.logger != nil {
		p.logger.Debug("imap connection established", "address", address, "user", p.opts.Username, "target", p.targetFolder(), "tls", p.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				if p.logger != nil {
					p.logger.Warn("imap logout failed", "err", err)
				}
			}
		}
		if err := client.Close(); err != nil && p.logger != nil {
			p.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func (p *Publisher) appendMessage(client *imapclient.Client, raw []byte, at time.Time) error {
	target := p.targetFolder()

	var opts *imapv2.AppendOptions
	if !at.IsZero() {
		opts = &imapv2.AppendOptions{Time: at}
	}

	cmd := client.Append(target, int64(len(raw)), opts)

	remaining := raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}

	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}

	return nil
}

func (p *Publisher) targetFolder() string {
	if p.opts.TargetFolder == "" {
		return "INBOX"
	}
	return p.opts.TargetFolder
}

func (p *Publisher) ensureMailbox(client *imapclient.Client) error {
	target := p.targetFolder()
	cmd := client.Create(target, nil)
	if err := cmd.Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) {
			if respErr.Code == imapv2.ResponseCodeAlreadyExists {
				if p.logger != nil {
					p.logger.Debug("imap mailbox already exists", "mailbox", target)
				}
				return nil
			}
		}
		return fmt.Errorf("ensure mailbox %s: %w", target, err)
	}

	if p.logger != nil {
		p.logger.Info("imap mailbox created", "mailbox", target)
	}

	return nil
}
