// Package upload parses multipart form submissions into text fields plus
// attachment parts while enforcing count and size limits. Small files stay
// in memory; larger ones spill to uniquely named temporary files that the
// owning request must clean up.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrBadUpload marks malformed multipart bodies and limit violations.
// Handlers map it to HTTP 400.
var ErrBadUpload = errors.New("bad upload")

const (
	// Files at or below this size are kept in memory.
	memoryThreshold = 512 << 10
	// Cap on a single text field; emailHtml is the largest legitimate one.
	maxFieldBytes = 2 << 20
)

// Limits bounds what a single request may upload.
type Limits struct {
	MaxFiles     int
	MaxFileBytes int64
}

func (l Limits) normalized() Limits {
	if l.MaxFiles <= 0 {
		l.MaxFiles = 5
	}
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = 10 << 20
	}
	return l
}

// FilePart is one uploaded file, backed by memory or a temp file. Callers
// read it through Bytes or Open and must not care which backing is in use.
type FilePart struct {
	FieldName string
	Filename  string
	Size      int64

	data    []byte
	tmpPath string
}

// InMemory reports whether the part is buffered in memory.
func (p *FilePart) InMemory() bool {
	return p.tmpPath == ""
}

// Bytes returns the full content of the part.
func (p *FilePart) Bytes() ([]byte, error) {
	if p.InMemory() {
		return p.data, nil
	}
	return os.ReadFile(p.tmpPath)
}

// Open returns a reader over the part content.
func (p *FilePart) Open() (io.ReadCloser, error) {
	if p.InMemory() {
		return io.NopCloser(bytes.NewReader(p.data)), nil
	}
	return os.Open(p.tmpPath)
}

// Cleanup removes the backing temp file, if any. It is safe to call more
// than once.
func (p *FilePart) Cleanup() error {
	if p.tmpPath == "" {
		return nil
	}
	path := p.tmpPath
	p.tmpPath = ""
	p.data = nil
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Form is the parsed request body: text fields plus ordered file parts.
type Form struct {
	Fields map[string]string
	Files  []*FilePart
}

// Cleanup removes every temp-file-backed part. The first error is returned
// but cleanup continues for the remaining parts.
func (f *Form) Cleanup() error {
	if f == nil {
		return nil
	}
	var first error
	for _, part := range f.Files {
		if err := part.Cleanup(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Parse consumes the request body as multipart form data. Any violation
// fails the whole request: previously spilled temp files are removed before
// the error is returned, so no partial state leaks.
func Parse(r *http.Request, limits Limits) (*Form, error) {
	limits = limits.normalized()

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadUpload, err)
	}

	form := &Form{Fields: make(map[string]string)}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = form.Cleanup()
			return nil, fmt.Errorf("%w: %v", ErrBadUpload, err)
		}

		if part.FileName() == "" {
			value, err := readField(part)
			part.Close()
			if err != nil {
				_ = form.Cleanup()
				return nil, err
			}
			form.Fields[part.FormName()] = value
			continue
		}

		if len(form.Files) >= limits.MaxFiles {
			part.Close()
			_ = form.Cleanup()
			return nil, fmt.Errorf("%w: too many files (max %d)", ErrBadUpload, limits.MaxFiles)
		}

		filePart, err := readFile(part, limits.MaxFileBytes)
		part.Close()
		if err != nil {
			_ = form.Cleanup()
			return nil, err
		}
		form.Files = append(form.Files, filePart)
	}

	return form, nil
}

func readField(part *multipart.Part) (string, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: reading field %q: %v", ErrBadUpload, part.FormName(), err)
	}
	if n > maxFieldBytes {
		return "", fmt.Errorf("%w: field %q exceeds %d bytes", ErrBadUpload, part.FormName(), maxFieldBytes)
	}
	return buf.String(), nil
}

func readFile(part *multipart.Part, maxBytes int64) (*FilePart, error) {
	fp := &FilePart{
		FieldName: part.FormName(),
		// The filename is attacker controlled; keep only the base name.
		Filename: filepath.Base(strings.TrimSpace(part.FileName())),
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(part, memoryThreshold+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading file %q: %v", ErrBadUpload, fp.Filename, err)
	}

	if n <= memoryThreshold {
		if n > maxBytes {
			return nil, fileTooLarge(fp.Filename, maxBytes)
		}
		fp.data = buf.Bytes()
		fp.Size = n
		return fp, nil
	}

	// Too big for memory: spill the buffered prefix and the remainder to a
	// uniquely named temp file.
	name := fmt.Sprintf("%s-%s%s", fp.FieldName, uuid.NewString(), filepath.Ext(fp.Filename))
	path := filepath.Join(os.TempDir(), name)
	tmp, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	fp.tmpPath = path

	written, err := io.Copy(tmp, &buf)
	if err == nil {
		var rest int64
		rest, err = io.Copy(tmp, io.LimitReader(part, maxBytes-written+1))
		written += rest
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fp.Cleanup()
		return nil, fmt.Errorf("%w: writing file %q: %v", ErrBadUpload, fp.Filename, err)
	}
	if written > maxBytes {
		_ = fp.Cleanup()
		return nil, fileTooLarge(fp.Filename, maxBytes)
	}

	fp.Size = written
	return fp, nil
}

func fileTooLarge(name string, maxBytes int64) error {
	return fmt.Errorf("%w: file %q exceeds the %d MiB limit", ErrBadUpload, name, maxBytes>>20)
}
