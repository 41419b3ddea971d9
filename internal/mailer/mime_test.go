package mailer

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, time.June, 10, 9, 30, 0, 0, time.UTC)

func TestEncodeMessageWithoutAttachments(t *testing.T) {
	msg := &Message{
		MessageID:   "abc123",
		FromName:    "Magpollo Website",
		FromAddress: "noreply@magpollo.com",
		To:          []string{"salesteam@magpollo.com"},
		ReplyTo:     "ada@example.com",
		Subject:     "New Inquiry from Ada - Magpollo Website",
		HTMLBody:    "<html><body>hi</body></html>",
	}

	raw, err := encodeMessage(msg, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("encoded message does not parse: %v", err)
	}

	if got := parsed.Header.Get("From"); !strings.Contains(got, "Magpollo Website") || !strings.Contains(got, "noreply@magpollo.com") {
		t.Fatalf("unexpected From header %q", got)
	}
	if got := parsed.Header.Get("Reply-To"); got != "ada@example.com" {
		t.Fatalf("unexpected Reply-To header %q", got)
	}
	if got := parsed.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Fatalf("unexpected Content-Type %q", got)
	}
	if got := parsed.Header.Get("Message-Id"); !strings.Contains(got, "abc123@magpollo.com") {
		t.Fatalf("unexpected Message-Id %q", got)
	}

	body, err := io.ReadAll(parsed.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), "<html><body>hi</body></html>") {
		t.Fatalf("body missing html: %q", body)
	}
}

func TestEncodeMessageWithAttachments(t *testing.T) {
	content := []byte("binary\x00payload")
	msg := &Message{
		FromAddress: "noreply@magpollo.com",
		To:          []string{"salesteam@magpollo.com"},
		Subject:     "attachments",
		HTMLBody:    "<p>see attached</p>",
		Attachments: []Attachment{
			{Filename: "deck.pdf", Content: content},
		},
	}

	raw, err := encodeMessage(msg, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("encoded message does not parse: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("expected multipart/mixed, got %q (err %v)", mediaType, err)
	}

	mr := multipart.NewReader(parsed.Body, params["boundary"])

	bodyPart, err := mr.NextPart()
	if err != nil {
		t.Fatalf("reading body part: %v", err)
	}
	bodyBytes, _ := io.ReadAll(bodyPart)
	if !strings.Contains(string(bodyBytes), "see attached") {
		t.Fatalf("first part should be the html body, got %q", bodyBytes)
	}

	attPart, err := mr.NextPart()
	if err != nil {
		t.Fatalf("reading attachment part: %v", err)
	}
	if got := attPart.FileName(); got != "deck.pdf" {
		t.Fatalf("unexpected attachment filename %q", got)
	}
	if got := attPart.Header.Get("Content-Transfer-Encoding"); got != "base64" {
		t.Fatalf("unexpected transfer encoding %q", got)
	}
	attBytes, _ := io.ReadAll(attPart)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(strings.ReplaceAll(string(attBytes), "\r\n", ""), "\n", ""))
	if err != nil {
		t.Fatalf("attachment is not valid base64: %v", err)
	}
	if !bytes.Equal(decoded, content) {
		t.Fatal("attachment content does not round trip")
	}
}

func TestEncodeMessageSanitizesHeaders(t *testing.T) {
	msg := &Message{
		FromAddress: "noreply@magpollo.com",
		To:          []string{"salesteam@magpollo.com"},
		Subject:     "evil\r\nBcc: attacker@example.com",
		HTMLBody:    "<p>x</p>",
	}

	raw, err := encodeMessage(msg, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("encoded message does not parse: %v", err)
	}
	if got := parsed.Header.Get("Bcc"); got != "" {
		t.Fatalf("header injection not neutralised, Bcc=%q", got)
	}
}

func TestNormalizeBodyUsesCRLF(t *testing.T) {
	got := normalizeBody("a\nb\r\nc\rd")
	if got != "a\r\nb\r\nc\r\nd" {
		t.Fatalf("unexpected normalization %q", got)
	}
}
