// Package client implements the submission side of the contact flow: a
// draft that accumulates the visitor's choices across steps, and a
// submitter that posts the finished draft to the backend.
package client

import (
	"errors"
	"fmt"

	"github.com/magpollo/site-backend/internal/catalog"
)

// ErrDraftInvalid marks a draft that fails local validation; nothing is
// sent when it is returned.
var ErrDraftInvalid = errors.New("draft invalid")

// File is an in-memory attachment added to the draft.
type File struct {
	Name    string
	Content []byte
}

// Draft holds one visit's submission state. It lives only for the duration
// of the flow and is mutated by user interaction.
type Draft struct {
	Name    string
	Email   string
	Company string
	Message string

	selected []catalog.ServiceOption
	files    []File
}

// ToggleService adds the offering to the selection, or removes it when it
// is already selected.
func (d *Draft) ToggleService(opt catalog.ServiceOption) {
	for i, s := range d.selected {
		if s.ID == opt.ID {
			d.selected = append(d.selected[:i], d.selected[i+1:]...)
			return
		}
	}
	d.selected = append(d.selected, opt)
}

// SelectedServices returns the current selection in insertion order.
func (d *Draft) SelectedServices() []catalog.ServiceOption {
	out := make([]catalog.ServiceOption, len(d.selected))
	copy(out, d.selected)
	return out
}

// AddFile appends an attachment.
func (d *Draft) AddFile(name string, content []byte) {
	d.files = append(d.files, File{Name: name, Content: content})
}

// RemoveFile drops the attachment at the given position. Out-of-range
// positions are ignored.
func (d *Draft) RemoveFile(i int) {
	if i < 0 || i >= len(d.files) {
		return
	}
	d.files = append(d.files[:i], d.files[i+1:]...)
}

// Files returns the attachments in order.
func (d *Draft) Files() []File {
	out := make([]File, len(d.files))
	copy(out, d.files)
	return out
}

// CanAdvance reports whether the flow may move from service selection to
// the contact-detail step. At least one service must be selected.
func (d *Draft) CanAdvance() bool {
	return len(d.selected) > 0
}

// Validate checks the fields required before submission.
func (d *Draft) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrDraftInvalid)
	}
	if d.Email == "" {
		return fmt.Errorf("%w: email is required", ErrDraftInvalid)
	}
	return nil
}
