package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/magpollo/site-backend/internal/render"
)

// Result is the outcome of one submission attempt.
type Result struct {
	Success bool
	Message string
}

// SubmitterOption customises the submitter.
type SubmitterOption func(*Submitter)

// WithHTTPClient swaps the HTTP client used for the request.
func WithHTTPClient(c *http.Client) SubmitterOption {
	return func(s *Submitter) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithRenderer swaps the renderer used to precompute the email body.
func WithRenderer(r *render.Renderer) SubmitterOption {
	return func(s *Submitter) {
		if r != nil {
			s.renderer = r
		}
	}
}

// Submitter posts finished drafts to the backend. It performs exactly one
// network call per Submit and never retries; preventing double submission
// while a call is in flight is the caller's concern.
type Submitter struct {
	logger     zerolog.Logger
	baseURL    string
	httpClient *http.Client
	renderer   *render.Renderer
}

// NewSubmitter constructs a Submitter targeting the given base URL.
func NewSubmitter(baseURL string, logger zerolog.Logger, opts ...SubmitterOption) (*Submitter, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("submitter: base url is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	s := &Submitter{
		logger:     logger,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		renderer:   render.New(logger),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

// Submit validates the draft, assembles the multipart payload (including
// the pre-rendered email body) and posts it to /api/send_mail.
func (s *Submitter) Submit(ctx context.Context, draft *Draft) Result {
	if draft == nil {
		return Result{Success: false, Message: "nothing to submit"}
	}
	if err := draft.Validate(); err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	body, contentType, err := s.assemble(draft)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to assemble submission payload")
		return Result{Success: false, Message: "Could not prepare the submission"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/send_mail", body)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Msg("submission request failed")
		return Result{Success: false, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := decodeMessage(resp, fmt.Sprintf("Server error: %d", resp.StatusCode))
		return Result{Success: false, Message: msg}
	}

	return Result{Success: true, Message: decodeMessage(resp, "Email sent successfully")}
}

func (s *Submitter) assemble(draft *Draft) (*bytes.Buffer, string, error) {
	titles := make([]string, 0)
	for _, svc := range draft.SelectedServices() {
		titles = append(titles, svc.Title)
	}

	files := draft.Files()
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}

	emailHTML := s.renderer.Body(render.Input{
		Name:            draft.Name,
		Email:           draft.Email,
		Company:         draft.Company,
		Message:         draft.Message,
		Services:        titles,
		AttachmentNames: names,
	})

	selected, err := json.Marshal(titles)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct {
		name  string
		value string
	}{
		{"name", draft.Name},
		{"email", draft.Email},
		{"company", draft.Company},
		{"message", draft.Message},
		{"selectedServices", string(selected)},
		{"emailHtml", emailHTML},
	}
	for _, f := range fields {
		// company and message are omitted entirely when absent
		if f.value == "" && (f.name == "company" || f.name == "message") {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		part, err := mw.CreateFormFile("file", f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return &buf, mw.FormDataContentType(), nil
}

func decodeMessage(resp *http.Response, fallback string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Message == "" {
		return fallback
	}
	return payload.Message
}
