package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
)

const base64LineLength = 76

// encodeMessage renders the message as RFC 5322 wire format. A message
// without attachments is a single text/html body; with attachments it
// becomes multipart/mixed with base64 encoded file parts.
func encodeMessage(msg *Message, now time.Time) ([]byte, error) {
	from := mail.Address{Name: msg.FromName, Address: msg.FromAddress}

	var buf bytes.Buffer
	writeHeader(&buf, "From", from.String())
	writeHeader(&buf, "To", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		writeHeader(&buf, "Cc", strings.Join(msg.CC, ", "))
	}
	if strings.TrimSpace(msg.ReplyTo) != "" {
		writeHeader(&buf, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", sanitizeHeaderValue(msg.Subject)))
	writeHeader(&buf, "Date", now.UTC().Format(time.RFC1123Z))
	if msg.MessageID != "" {
		writeHeader(&buf, "Message-Id", fmt.Sprintf("<%s@%s>", msg.MessageID, domainOf(msg.FromAddress)))
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(msg.Attachments) == 0 {
		writeHeader(&buf, "Content-Type", `text/html; charset=UTF-8`)
		buf.WriteString("\r\n")
		buf.WriteString(normalizeBody(msg.HTMLBody))
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", fmt.Sprintf(`multipart/mixed; boundary=%q`, mw.Boundary()))
	buf.WriteString("\r\n")

	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", `text/html; charset=UTF-8`)
	bodyPart, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write([]byte(normalizeBody(msg.HTMLBody))); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		filename := sanitizeHeaderValue(att.Filename)
		partHeader := textproto.MIMEHeader{}
		partHeader.Set("Content-Type", fmt.Sprintf(`application/octet-stream; name=%q`, filename))
		partHeader.Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
		partHeader.Set("Content-Transfer-Encoding", "base64")

		part, err := mw.CreatePart(partHeader)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, att.Content); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(sanitizeHeaderValue(value))
	buf.WriteString("\r\n")
}

// writeBase64 encodes content in 76 character lines as required for SMTP
// transfer of binary parts.
func writeBase64(w io.Writer, content []byte) error {
	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 0 {
		n := base64LineLength
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n])); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func normalizeBody(body string) string {
	if body == "" {
		return ""
	}
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.ReplaceAll(normalized, "\n", "\r\n")
}

func sanitizeHeaderValue(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}

func domainOf(address string) string {
	if idx := strings.LastIndex(address, "@"); idx >= 0 && idx < len(address)-1 {
		return address[idx+1:]
	}
	return "localhost"
}
