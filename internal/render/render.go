// Package render produces the HTML body of the inquiry notification email.
// Rendering never fails from the caller's point of view: an ordered list of
// strategies is tried in sequence and a fixed-text body is the terminal
// fallback.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Input carries the submission fields interpolated into the email body.
// Company and Message are optional; Services holds normalized titles.
type Input struct {
	Name            string
	Email           string
	Company         string
	Message         string
	Services        []string
	AttachmentNames []string
}

// Strategy is one way of turning an Input into an HTML document. Strategies
// are tried in order until one succeeds.
type Strategy struct {
	Name   string
	Render func(Input) (string, error)
}

// Option customises renderer behaviour.
type Option func(*Renderer)

// WithStrategies replaces the default strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Renderer) {
		if len(strategies) > 0 {
			r.strategies = strategies
		}
	}
}

// WithClock overrides the clock used for the footer year.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// Renderer resolves the email body through its strategy chain.
type Renderer struct {
	logger     zerolog.Logger
	strategies []Strategy
	now        func() time.Time
}

// New constructs a Renderer with the styled template first and the minimal
// template as its backup.
func New(logger zerolog.Logger, opts ...Option) *Renderer {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	r := &Renderer{
		logger: logger,
		now:    time.Now,
	}
	r.strategies = []Strategy{
		{Name: "styled", Render: r.renderStyled},
		{Name: "minimal", Render: r.renderMinimal},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Body renders the notification HTML for the given input. Strategy failures
// are logged and swallowed; the fixed-text fallback guarantees a body.
func (r *Renderer) Body(in Input) string {
	for _, s := range r.strategies {
		out, err := s.Render(in)
		if err != nil {
			r.logger.Warn().Str("strategy", s.Name).Err(err).Msg("email render strategy failed")
			continue
		}
		return out
	}
	return r.renderFixed(in)
}

type templateData struct {
	Input
	Year int
}

var templateFuncs = template.FuncMap{
	// nl2br escapes first, then reintroduces line breaks as markup so a
	// multi-line message stays multi-line in the mail client.
	"nl2br": func(s string) template.HTML {
		escaped := template.HTMLEscapeString(s)
		escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
		return template.HTML(strings.ReplaceAll(escaped, "\n", "<br />\n"))
	},
}

var styledTmpl = template.Must(template.New("styled").Funcs(templateFuncs).Parse(`<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1 style="color: #ef4444; text-align: center;">New Inquiry from Magpollo Website</h1>

    <div style="margin-bottom: 20px;">
      <h2>Contact Information</h2>
      <p><strong>Name:</strong> {{.Name}}</p>
      <p><strong>Email:</strong> <a href="mailto:{{.Email}}" style="color: #ef4444;">{{.Email}}</a></p>
      {{- if .Company}}
      <p><strong>Company:</strong> {{.Company}}</p>
      {{- end}}
    </div>

    <hr style="border-color: #ddd; margin: 20px 0;" />

    <div style="margin-bottom: 20px;">
      <h2>Services Requested</h2>
      {{- if .Services}}
      <ul>
        {{- range .Services}}
        <li>{{.}}</li>
        {{- end}}
      </ul>
      {{- else}}
      <p>No specific services selected.</p>
      {{- end}}
    </div>

    {{- if .Message}}
    <hr style="border-color: #ddd; margin: 20px 0;" />
    <div style="margin-bottom: 20px;">
      <h2>Message</h2>
      <p>{{nl2br .Message}}</p>
    </div>
    {{- end}}

    {{- if .AttachmentNames}}
    <hr style="border-color: #ddd; margin: 20px 0;" />
    <div style="margin-bottom: 20px;">
      <h2>Attachments</h2>
      <ul>
        {{- range .AttachmentNames}}
        <li>{{.}}</li>
        {{- end}}
      </ul>
    </div>
    {{- end}}

    <hr style="border-color: #ddd; margin: 20px 0;" />

    <div style="text-align: center; color: #777; font-size: 14px;">
      <p>&copy; {{.Year}} Magpollo. All rights reserved.</p>
      <p>This is an automated message from the Magpollo website contact form.</p>
    </div>
  </body>
</html>`))

var minimalTmpl = template.Must(template.New("minimal").Funcs(templateFuncs).Parse(`<html>
  <body>
    <h1>New Inquiry from Magpollo Website</h1>
    <p>Name: {{.Name}}</p>
    <p>Email: {{.Email}}</p>
    {{- if .Company}}
    <p>Company: {{.Company}}</p>
    {{- end}}
    {{- if .Services}}
    <p>Services: {{range $i, $s := .Services}}{{if $i}}, {{end}}{{$s}}{{end}}</p>
    {{- else}}
    <p>Services: No specific services selected.</p>
    {{- end}}
    {{- if .Message}}
    <p>Message: {{nl2br .Message}}</p>
    {{- end}}
    {{- if .AttachmentNames}}
    <p>Attachments: {{range $i, $n := .AttachmentNames}}{{if $i}}, {{end}}{{$n}}{{end}}</p>
    {{- end}}
    <p>&copy; {{.Year}} Magpollo. All rights reserved.</p>
  </body>
</html>`))

func (r *Renderer) renderStyled(in Input) (string, error) {
	return execute(styledTmpl, templateData{Input: in, Year: r.now().Year()})
}

func (r *Renderer) renderMinimal(in Input) (string, error) {
	return execute(minimalTmpl, templateData{Input: in, Year: r.now().Year()})
}

// renderFixed is the terminal fallback. It cannot fail.
func (r *Renderer) renderFixed(in Input) string {
	return fmt.Sprintf(
		"<html><body><h1>New Inquiry from Magpollo Website</h1><p>Name: %s</p><p>Email: %s</p><p>Attachments: %d</p></body></html>",
		template.HTMLEscapeString(in.Name),
		template.HTMLEscapeString(in.Email),
		len(in.AttachmentNames),
	)
}

func execute(tmpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
