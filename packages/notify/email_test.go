package notify

import (
	"bufio"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/report"
)

// smtpSession is what the fake server saw during one connection
type smtpSession struct {
	from string
	rcpt []string
	data string
}

// fakeSMTP accepts a single plain text SMTP session
func fakeSMTP(t *testing.T) (host string, port int, done <-chan smtpSession) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ch := make(chan smtpSession, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))

		var sess smtpSession
		r := bufio.NewReader(conn)
		reply := func(s string) { conn.Write([]byte(s + "\r\n")) }
		reply("220 localhost ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250-localhost")
				reply("250 8BITMIME")
			case strings.HasPrefix(cmd, "MAIL FROM:"):
				sess.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
				if i := strings.Index(sess.from, ">"); i >= 0 {
					sess.from = sess.from[:i]
				}
				reply("250 OK")
			case strings.HasPrefix(cmd, "RCPT TO:"):
				sess.rcpt = append(sess.rcpt, strings.Trim(line[len("RCPT TO:"):], "<> "))
				reply("250 OK")
			case cmd == "DATA":
				reply("354 go ahead")
				var b strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					b.WriteString(l)
				}
				sess.data = b.String()
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				ch <- sess
				return
			default:
				reply("250 OK")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, ch
}

func plainSMTP(host string, port int) config.SMTPConfig {
	noTLS := false
	return config.SMTPConfig{Host: host, Port: port, UseTLS: &noTLS}
}

func TestEmailSubjectAndBody(t *testing.T) {
	e := NewEmailNotifier(&config.EmailConfig{})
	assert.Equal(t, "email", e.Name())
	assert.Equal(t, "API test results: API Tests", e.Subject(passing()))

	e = NewEmailNotifier(&config.EmailConfig{Subject: "Nightly"})
	assert.Equal(t, "Nightly", e.Subject(passing()))

	assert.Equal(t, "Failed test case IDs (0):\n- None\n", Body(passing()))
	assert.Equal(t, "Failed test case IDs (1):\n- TC-2\n", Body(failing()))

	fatal := &RunSummary{Fatal: "authentication failed"}
	assert.Contains(t, Body(fatal), "Run aborted: authentication failed")
}

func TestEmailNoRecipients(t *testing.T) {
	e := NewEmailNotifier(&config.EmailConfig{SMTP: config.SMTPConfig{Host: "127.0.0.1", Port: 1}})
	assert.NoError(t, e.Notify(failing()))
}

func TestEmailSend(t *testing.T) {
	host, port, done := fakeSMTP(t)

	dir := t.TempDir()
	collPath := filepath.Join(dir, "API Tests_postman_collection.json")
	require.NoError(t, os.WriteFile(collPath, []byte(`{"info":{}}`), 0o644))
	missing := filepath.Join(dir, "gone_results.xlsx")

	summary := failing()
	summary.Attachments = report.Attachments(collPath, missing)

	e := NewEmailNotifier(&config.EmailConfig{
		Recipients: []string{"qa@example.com", "dev@example.com"},
		From:       "bot@example.com",
		SMTP:       plainSMTP(host, port),
	}, WithEmailTimeout(5*time.Second))
	require.NoError(t, e.Notify(summary))

	var sess smtpSession
	select {
	case sess = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session did not finish")
	}

	assert.Equal(t, "bot@example.com", sess.from)
	assert.Equal(t, []string{"qa@example.com", "dev@example.com"}, sess.rcpt)
	assert.Contains(t, sess.data, "Subject: API test results: API Tests\r\n")
	assert.Contains(t, sess.data, "To: qa@example.com, dev@example.com\r\n")
	assert.Contains(t, sess.data, "Content-Type: multipart/mixed")
	assert.Contains(t, sess.data, "Failed test case IDs (1):")
	assert.Contains(t, sess.data, "- TC-2")
	assert.Contains(t, sess.data, `filename="API Tests_postman_collection.json"`)
	assert.Contains(t, sess.data, base64.StdEncoding.EncodeToString([]byte(`{"info":{}}`)))
	assert.NotContains(t, sess.data, "gone_results.xlsx")
}

func TestEmailConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	e := NewEmailNotifier(&config.EmailConfig{
		Recipients: []string{"qa@example.com"},
		From:       "bot@example.com",
		SMTP:       plainSMTP("127.0.0.1", port),
	}, WithEmailTimeout(time.Second))
	err = e.Notify(passing())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
}
