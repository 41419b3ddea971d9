// Package mailer delivers composed inquiry notifications through an SMTP
// relay. The transport is synchronous: a failed send is terminal for the
// request that produced it, there is no queue and no retry.
package mailer

import (
	"context"
	"time"
)

// Attachment is one file carried by an outbound message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is the canonical representation of an outbound notification.
// It is constructed once per request and discarded after the send.
type Message struct {
	MessageID   string
	FromName    string
	FromAddress string
	To          []string
	CC          []string
	ReplyTo     string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Receipt reports what the relay accepted.
type Receipt struct {
	MessageID          string
	AcceptedRecipients []string
	Timestamp          time.Time
}

// Transport is the contract for sending a composed message.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*Receipt, error)
}
