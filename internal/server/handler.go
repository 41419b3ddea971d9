package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/magpollo/site-backend/internal/config"
	"github.com/magpollo/site-backend/internal/mailer"
	"github.com/magpollo/site-backend/internal/render"
	"github.com/magpollo/site-backend/internal/upload"
)

// Handlers contains the HTTP handlers for the site backend.
type Handlers struct {
	logger    zerolog.Logger
	mail      config.MailConfig
	limits    upload.Limits
	renderer  *render.Renderer
	transport mailer.Transport
}

// NewHandlers constructs the handler set with its dependencies.
func NewHandlers(mail config.MailConfig, limits upload.Limits, renderer *render.Renderer, transport mailer.Transport, logger zerolog.Logger) (*Handlers, error) {
	if renderer == nil {
		return nil, errors.New("handlers: renderer dependency is required")
	}
	if transport == nil {
		return nil, errors.New("handlers: transport dependency is required")
	}
	if strings.TrimSpace(mail.ToAddress) == "" {
		return nil, errors.New("handlers: destination address is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	return &Handlers{
		logger:    logger,
		mail:      mail,
		limits:    limits,
		renderer:  renderer,
		transport: transport,
	}, nil
}

// Health reports liveness for monitoring.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SendMail handles POST /api/send_mail: parse the multipart submission,
// validate, resolve the HTML body, compose the outbound message and hand it
// to the transport. Temp files are removed on every path.
func (h *Handlers) SendMail(c *gin.Context) {
	form, err := upload.Parse(c.Request, h.limits)
	if err != nil {
		if errors.Is(err, upload.ErrBadUpload) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid upload", "error": err.Error()})
			return
		}
		h.logger.Error().Err(err).Msg("multipart parse failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	defer func() {
		if err := form.Cleanup(); err != nil {
			h.logger.Error().Err(err).Msg("temp file cleanup failed")
		}
	}()

	name := strings.TrimSpace(form.Fields["name"])
	email := strings.TrimSpace(form.Fields["email"])
	if name == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required fields"})
		return
	}

	services := normalizeServices(form.Fields["selectedServices"], h.logger)

	attachmentNames := make([]string, 0, len(form.Files))
	for _, f := range form.Files {
		attachmentNames = append(attachmentNames, f.Filename)
	}

	// A client-rendered body wins; otherwise render server side with the
	// fallback chain.
	html := strings.TrimSpace(form.Fields["emailHtml"])
	if html == "" {
		html = h.renderer.Body(render.Input{
			Name:            name,
			Email:           email,
			Company:         strings.TrimSpace(form.Fields["company"]),
			Message:         form.Fields["message"],
			Services:        services,
			AttachmentNames: attachmentNames,
		})
	}

	attachments := make([]mailer.Attachment, 0, len(form.Files))
	for _, f := range form.Files {
		content, err := f.Bytes()
		if err != nil {
			h.logger.Error().Str("filename", f.Filename).Err(err).Msg("reading uploaded file failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to read attachment", "error": err.Error()})
			return
		}
		attachments = append(attachments, mailer.Attachment{Filename: f.Filename, Content: content})
	}

	msg := &mailer.Message{
		MessageID:   uuid.NewString(),
		FromName:    h.mail.FromName,
		FromAddress: h.mail.FromAddress,
		To:          []string{h.mail.ToAddress},
		CC:          splitAddresses(h.mail.CCAddress),
		ReplyTo:     email,
		Subject:     fmt.Sprintf("New Inquiry from %s - Magpollo Website", name),
		HTMLBody:    html,
		Attachments: attachments,
	}

	receipt, err := h.transport.Send(c.Request.Context(), msg)
	if err != nil {
		h.logger.Error().Str("message_id", msg.MessageID).Err(err).Msg("failed to send inquiry email")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send email", "error": err.Error()})
		return
	}

	h.logger.Info().
		Str("message_id", receipt.MessageID).
		Strs("recipients", receipt.AcceptedRecipients).
		Int("attachments", len(attachments)).
		Msg("inquiry email sent")

	c.JSON(http.StatusOK, gin.H{"message": "Email sent successfully"})
}

// normalizeServices accepts the selectedServices field as a JSON array of
// plain strings or of {id,title} objects and returns the title list in
// order. Untitled entries become "Service N" (1-based position).
func normalizeServices(raw string, logger zerolog.Logger) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Warn().Err(err).Msg("could not parse selectedServices")
		return nil
	}

	titles := make([]string, 0, len(entries))
	for i, entry := range entries {
		var title string
		if err := json.Unmarshal(entry, &title); err == nil {
			titles = append(titles, title)
			continue
		}

		var obj struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil && strings.TrimSpace(obj.Title) != "" {
			titles = append(titles, obj.Title)
			continue
		}

		titles = append(titles, fmt.Sprintf("Service %d", i+1))
	}
	return titles
}

func splitAddresses(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
