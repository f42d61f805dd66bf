package programstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/program"
)

// Document is a stored program with its metadata
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Version for optimistic concurrency control
	Version int64 `json:"version"`

	// Program is the serialized program as produced by program.Marshal
	Program json.RawMessage `json:"program"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// NewDocument serializes p into a new, unsaved document
func NewDocument(id, name string, p *program.Program) (*Document, error) {
	data, err := program.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "programstore", "NewDocument", "marshal program")
	}
	return &Document{ID: id, Name: name, Program: data}, nil
}

// Load rebuilds the stored program
func (d *Document) Load(opts ...program.Option) (*program.Program, error) {
	p, err := program.Unmarshal(d.Program, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "programstore", "Load", fmt.Sprintf("decode program %s", d.ID))
	}
	return p, nil
}

// Validate checks the metadata and the embedded program document
func (d *Document) Validate() error {
	if d.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("document ID cannot be empty: %w", errors.ErrInvalidData),
			"programstore", "Validate", "validation failed")
	}
	if !validKey(d.ID) {
		return errors.WrapInvalid(fmt.Errorf("document ID %q contains characters not allowed in a KV key: %w", d.ID, errors.ErrInvalidData),
			"programstore", "Validate", "validation failed")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.WrapInvalid(fmt.Errorf("document name cannot be empty: %w", errors.ErrInvalidData),
			"programstore", "Validate", "validation failed")
	}
	if len(d.Program) == 0 {
		return errors.WrapInvalid(fmt.Errorf("document %s has no program: %w", d.ID, errors.ErrInvalidData),
			"programstore", "Validate", "validation failed")
	}
	if err := program.ValidateDocument(d.Program); err != nil {
		return errors.Wrap(err, "programstore", "Validate", fmt.Sprintf("program of %s", d.ID))
	}
	return nil
}

// validKey reports whether id is usable as a NATS KV key
func validKey(id string) bool {
	if strings.HasPrefix(id, ".") || strings.HasSuffix(id, ".") {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '-', r == '_', r == '=', r == '/', r == '.':
			return false
		}
		return true
	})
}
