package notify

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
)

// EmailNotifier mails the run summary with the collection and results
// workbook attached
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	useSSL   bool

	from    string
	to      []string
	subject string

	timeout   time.Duration
	tlsConfig *tls.Config
	log       *zap.Logger
}

// EmailOption is a functional option for EmailNotifier
type EmailOption func(*EmailNotifier)

// WithEmailTimeout bounds the whole SMTP session
func WithEmailTimeout(d time.Duration) EmailOption {
	return func(e *EmailNotifier) {
		e.timeout = d
	}
}

// WithEmailTLSConfig overrides the TLS settings used for SSL and STARTTLS
func WithEmailTLSConfig(c *tls.Config) EmailOption {
	return func(e *EmailNotifier) {
		e.tlsConfig = c
	}
}

func WithEmailLogger(l *zap.Logger) EmailOption {
	return func(e *EmailNotifier) {
		e.log = logging.OrNop(l)
	}
}

// NewEmailNotifier creates an email notifier from the email config
func NewEmailNotifier(cfg *config.EmailConfig, opts ...EmailOption) *EmailNotifier {
	e := &EmailNotifier{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.GetPort(),
		username: cfg.SMTP.Username,
		password: cfg.SMTP.Password,
		useTLS:   cfg.SMTP.GetUseTLS(),
		useSSL:   cfg.SMTP.GetUseSSL(),
		from:     cfg.Sender(),
		to:       cfg.Recipients,
		subject:  cfg.Subject,
		timeout:  30 * time.Second,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the name of the notifier
func (e *EmailNotifier) Name() string {
	return "email"
}

// Subject returns the configured subject or the default for the collection
func (e *EmailNotifier) Subject(summary *RunSummary) string {
	if e.subject != "" {
		return e.subject
	}
	return "API test results: " + summary.Collection
}

// Body renders the plain text body listing the cases that did not pass
func Body(summary *RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed test case IDs (%d):\n", len(summary.FailedIDs))
	if len(summary.FailedIDs) == 0 {
		b.WriteString("- None\n")
	}
	for _, id := range summary.FailedIDs {
		fmt.Fprintf(&b, "- %s\n", id)
	}
	if summary.Fatal != "" {
		fmt.Fprintf(&b, "\nRun aborted: %s\n", summary.Fatal)
	}
	return b.String()
}

// Notify sends the results email. It is a no-op without recipients.
func (e *EmailNotifier) Notify(summary *RunSummary) error {
	if len(e.to) == 0 {
		e.log.Debug("no email recipients configured, skipping")
		return nil
	}

	msg, err := e.message(summary)
	if err != nil {
		return fmt.Errorf("failed to build email: %w", err)
	}
	return e.send(msg)
}

func (e *EmailNotifier) tlsConfigFor() *tls.Config {
	if e.tlsConfig != nil {
		return e.tlsConfig
	}
	return &tls.Config{ServerName: e.host}
}

func (e *EmailNotifier) dial() (*smtp.Client, error) {
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	dialer := &net.Dialer{Timeout: e.timeout}

	var (
		conn net.Conn
		err  error
	)
	if e.useSSL && !e.useTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, e.tlsConfigFor())
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(e.timeout)); err != nil {
		conn.Close()
		return nil, err
	}

	c, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake with %s: %w", addr, err)
	}

	if e.useTLS {
		if err := c.StartTLS(e.tlsConfigFor()); err != nil {
			c.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return c, nil
}

func (e *EmailNotifier) send(msg []byte) error {
	c, err := e.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if e.username != "" && e.password != "" {
		if err := c.Auth(smtp.PlainAuth("", e.username, e.password, e.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(e.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range e.to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	return c.Quit()
}

// message renders a multipart/mixed message. Attachments that cannot be
// read are skipped.
func (e *EmailNotifier) message(summary *RunSummary) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", e.from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject(summary)))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	th := textproto.MIMEHeader{}
	th.Set("Content-Type", "text/plain; charset=utf-8")
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := mw.CreatePart(th)
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(Body(summary))); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	for _, a := range summary.Attachments {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			e.log.Warn("skipping email attachment", zap.String("path", a.Path), zap.Error(err))
			continue
		}
		name := a.Name
		if name == "" {
			name = filepath.Base(a.Path)
		}

		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ah := textproto.MIMEHeader{}
		ah.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": name}))
		ah.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		ah.Set("Content-Transfer-Encoding", "base64")
		part, err := mw.CreatePart(ah)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64 writes data base64 encoded in 76 column lines
func writeBase64(w io.Writer, data []byte) error {
	const lineLen = 76
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := min(lineLen, len(enc))
		if _, err := w.Write([]byte(enc[:n] + "\r\n")); err != nil {
			return err
		}
		enc = enc[n:]
	}
	return nil
}
