// Package mailer composes plain-text notification messages in RFC 5322 form.
package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"
)

// Message is a single plain-text email.
type Message struct {
	FromName    string
	FromAddress string
	To          string
	Subject     string
	Body        string
	Date        time.Time
}

// ValidAddress reports whether addr parses as a single mailbox.
func ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	return parsed.Address == addr
}

// Build renders the message with UTF-8 headers and a base64 body.
func Build(msg Message) ([]byte, error) {
	if !ValidAddress(msg.To) {
		return nil, fmt.Errorf("invalid recipient %q", msg.To)
	}
	if !ValidAddress(msg.FromAddress) {
		return nil, fmt.Errorf("invalid sender %q", msg.FromAddress)
	}
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}

	from := (&mail.Address{Name: msg.FromName, Address: msg.FromAddress}).String()

	var buf bytes.Buffer
	writeHeader(&buf, "From", from)
	writeHeader(&buf, "To", msg.To)
	writeHeader(&buf, "Subject", mime.BEncoding.Encode("UTF-8", msg.Subject))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", `text/plain; charset="UTF-8"`)
	writeHeader(&buf, "Content-Transfer-Encoding", "base64")
	buf.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(normalizeNewlines(msg.Body)))
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func normalizeNewlines(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.ReplaceAll(body, "\n", "\r\n")
}
