package server_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/magpollo/site-backend/internal/config"
	"github.com/magpollo/site-backend/internal/mailer"
	"github.com/magpollo/site-backend/internal/render"
	"github.com/magpollo/site-backend/internal/server"
	"github.com/magpollo/site-backend/internal/upload"
)

type testFile struct {
	filename string
	content  []byte
}

func testMailConfig() config.MailConfig {
	return config.MailConfig{
		FromName:    "Magpollo Website",
		FromAddress: "noreply@magpollo.com",
		ToAddress:   "salesteam@magpollo.com",
	}
}

func newTestRouter(t *testing.T, transport mailer.Transport, renderer *render.Renderer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if renderer == nil {
		renderer = render.New(zerolog.Nop())
	}

	handlers, err := server.NewHandlers(testMailConfig(), upload.Limits{}, renderer, transport, zerolog.Nop())
	if err != nil {
		t.Fatalf("creating handlers: %v", err)
	}
	return server.NewRouter("test", "", handlers, zerolog.Nop())
}

func postForm(t *testing.T, router *gin.Engine, fields map[string]string, files []testFile) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("file", f.filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(f.content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/send_mail", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendMailSuccess(t *testing.T) {
	mock := mailer.NewMockTransport(zerolog.Nop())
	router := newTestRouter(t, mock, nil)

	rec := postForm(t, router, map[string]string{
		"name":             "Ada Lovelace",
		"email":            "ada@example.com",
		"selectedServices": `["Product Development","Tech Consulting"]`,
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not json: %v", err)
	}
	if resp["message"] == "" {
		t.Fatal("expected a confirmation message")
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(sent))
	}

	msg := sent[0]
	if msg.ReplyTo != "ada@example.com" {
		t.Fatalf("reply-to must be the submitter, got %q", msg.ReplyTo)
	}
	if !strings.Contains(msg.Subject, "Ada Lovelace") {
		t.Fatalf("subject must contain the name, got %q", msg.Subject)
	}
	if msg.To[0] != "salesteam@magpollo.com" {
		t.Fatalf("unexpected destination %v", msg.To)
	}
	for _, want := range []string{"Product Development", "Tech Consulting", "mailto:ada@example.com"} {
		if !strings.Contains(msg.HTMLBody, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.HTMLBody)
		}
	}
}

func TestSendMailMissingEmail(t *testing.T) {
	mock := mailer.NewMockTransport(zerolog.Nop())
	router := newTestRouter(t, mock, nil)

	rec := postForm(t, router, map[string]string{"name": "Ada Lovelace"}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(mock.Sent()) != 0 {
		t.Fatal("no message may be composed when validation fails")
	}
}

func TestSendMailMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, mailer.NewMockTransport(zerolog.Nop()), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/send_mail", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSendMailTooManyFiles(t *testing.T) {
	mock := mailer.NewMockTransport(zerolog.Nop())
	router := newTestRouter(t, mock, nil)

	files := make([]testFile, 6)
	for i := range files {
		files[i] = testFile{filename: "f.txt", content: []byte("x")}
	}

	rec := postForm(t, router, map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	}, files)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(mock.Sent()) != 0 {
		t.Fatal("upload rejection must happen before any send")
	}
}

func TestSendMailAttachments(t *testing.T) {
	mock := mailer.NewMockTransport(zerolog.Nop())
	router := newTestRouter(t, mock, nil)

	rec := postForm(t, router, map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	}, []testFile{{filename: "deck.pdf", content: []byte("pdfdata")}})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	msg := mock.Sent()[0]
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].Filename != "deck.pdf" || string(msg.Attachments[0].Content) != "pdfdata" {
		t.Fatalf("unexpected attachment %+v", msg.Attachments[0])
	}
	if !strings.Contains(msg.HTMLBody, "deck.pdf") {
		t.Fatal("rendered body should list the attachment name")
	}
}

func TestSendMailTransportFailureCleansTempFiles(t *testing.T) {
	mock := mailer.NewMockTransport(zerolog.Nop(), mailer.WithMockError(errors.New("invalid credentials")))
	router := newTestRouter(t, mock, nil)

	before, err := filepath.Glob(filepath.Join(os.TempDir(), "file-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}

	// Large enough to force the upload to spill to a temp file.
	large := bytes.Repeat([]byte("x"), 600<<10)
	rec := postForm(t, router, map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	}, []testFile{{filename: "big.bin", content: large}})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not json: %v", err)
	}
	if resp["message"] == "" {
		t.Fatal("expected an error message in the response")
	}

	after, err := filepath.Glob(filepath.Join(os.TempDir(), "file-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("temp files leaked after transport failure: %d before, %d after", len(before), len(after))
	}
}

func TestSendMailClientHTMLPassthrough(t *testing.T) {
	mock := mailer.NewMockTransport(zerolog.Nop())
	router := newTestRouter(t, mock, nil)

	clientHTML := "<html><body><p>prerendered</p></body></html>"
	rec := postForm(t, router, map[string]string{
		"name":      "Ada",
		"email":     "ada@example.com",
		"emailHtml": clientHTML,
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if mock.Sent()[0].HTMLBody != clientHTML {
		t.Fatal("client supplied emailHtml must be used verbatim")
	}
}

func TestSendMailObjectServicesNormalized(t *testing.T) {
	mock := mailer.NewMockTransport(zerolog.Nop())
	router := newTestRouter(t, mock, nil)

	rec := postForm(t, router, map[string]string{
		"name":             "Ada",
		"email":            "ada@example.com",
		"selectedServices": `[{"id":1,"title":"Product Development"},{"id":9}]`,
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := mock.Sent()[0].HTMLBody
	if !strings.Contains(body, "Product Development") {
		t.Fatalf("body missing titled service:\n%s", body)
	}
	if !strings.Contains(body, "Service 2") {
		t.Fatalf("untitled entry should default to Service 2:\n%s", body)
	}
}

func TestSendMailRendererFallbackStillSends(t *testing.T) {
	mock := mailer.NewMockTransport(zerolog.Nop())

	failing := render.Strategy{
		Name:   "broken",
		Render: func(render.Input) (string, error) { return "", errors.New("boom") },
	}
	renderer := render.New(zerolog.Nop(), render.WithStrategies(failing, failing))
	router := newTestRouter(t, mock, renderer)

	rec := postForm(t, router, map[string]string{
		"name":  "Ada Lovelace",
		"email": "ada@example.com",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("render failures must not fail the request, got %d", rec.Code)
	}

	body := mock.Sent()[0].HTMLBody
	if !strings.Contains(body, "Ada Lovelace") || !strings.Contains(body, "ada@example.com") {
		t.Fatalf("fallback body must carry name and email:\n%s", body)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, mailer.NewMockTransport(zerolog.Nop()), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
