package alert

import (
	"bufio"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailerLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notification_settings.json")

	m, err := NewMailer("smtp.example.com", 587, path, nil)
	require.NoError(t, err)
	assert.False(t, m.Settings().Enabled)

	want := Settings{
		Enabled:         true,
		SenderEmail:     "gate@example.com",
		SenderPassword:  "app-password",
		EmailRecipients: []string{"security@example.com"},
	}
	require.NoError(t, m.Save(want))

	// A fresh mailer picks up the saved file.
	m2, err := NewMailer("smtp.example.com", 587, path, nil)
	require.NoError(t, err)
	assert.Equal(t, want, m2.Settings())
}

func TestSendAlertDisabledIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m, err := NewMailer("smtp.example.com", 587, path, nil)
	require.NoError(t, err)

	// No settings file, alerts disabled: nothing to send, no error.
	assert.NoError(t, m.SendUnauthorizedAlert([]byte("jpeg"), 0.3, time.Now()))
}

// startSMTPStub speaks just enough SMTP to get a client through EHLO
// and STARTTLS, then hangs up without negotiating TLS.
func startSMTPStub(t *testing.T) (host string, port int, done chan struct{}) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done = make(chan struct{})
	go func() {
		defer close(done)
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 stub ready\r\n")
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"):
				fmt.Fprintf(conn, "250-stub\r\n250 STARTTLS\r\n")
			case strings.HasPrefix(line, "STARTTLS"):
				fmt.Fprintf(conn, "220 go ahead\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 ok\r\n")
			}
		}
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return h, port, done
}

func TestConnectionNegotiatesTLS(t *testing.T) {
	host, port, done := startSMTPStub(t)

	m, err := NewMailer(host, port, filepath.Join(t.TempDir(), "settings.json"), nil)
	require.NoError(t, err)
	require.NoError(t, m.Save(Settings{
		SenderEmail:    "gate@example.com",
		SenderPassword: "app-password",
	}))

	// The stub drops the connection when the handshake starts, so the
	// test must fail at the TLS layer, not on client-side config
	// validation before any bytes go out.
	err = m.TestConnection()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "ServerName or InsecureSkipVerify")
	<-done
}

func TestBuildMessageStructure(t *testing.T) {
	msg, err := buildMessage("gate@example.com", []string{"a@example.com", "b@example.com"},
		"Unauthorized access attempt detected", "body text", []byte{0xFF, 0xD8, 0xFF, 0xD9})
	require.NoError(t, err)

	s := string(msg)
	assert.Contains(t, s, "From: gate@example.com")
	assert.Contains(t, s, "To: a@example.com, b@example.com")
	assert.Contains(t, s, "Subject: Unauthorized access attempt detected")
	assert.Contains(t, s, "multipart/mixed")
	assert.Contains(t, s, "body text")
	assert.Contains(t, s, `filename="intruder.jpg"`)
	assert.True(t, strings.Contains(s, "base64"))
}
