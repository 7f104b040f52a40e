// Package validator checks a submission against its type's requirements and
// reports every violation at once.
package validator

import (
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"vouch/internal/verification/models"
	"vouch/internal/verification/registry"
	dErrors "vouch/pkg/domain-errors"
)

// MaxUserNotesLength bounds the free-text note a submitter may attach.
const MaxUserNotesLength = 2000

type Validator struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// Validate checks, in order: the type is known; each required field is
// present and non-blank; there are enough documents; each document is
// non-empty, within the size cap and of an allowed mime type. An unknown type
// fails alone; everything else is collected into one validation error.
func (v *Validator) Validate(
	t models.VerificationType,
	data map[string]string,
	documents []models.DocumentMeta,
	userNotes string,
) error {
	req, err := v.registry.RequirementsFor(t)
	if err != nil {
		return err
	}

	var fields []dErrors.FieldError
	for _, name := range req.RequiredFields {
		if strings.TrimSpace(data[name]) == "" {
			fields = append(fields, dErrors.FieldError{Field: name, Message: "is required"})
		}
	}

	if len(documents) < req.MinDocuments {
		fields = append(fields, dErrors.FieldError{
			Field:   "documents",
			Message: fmt.Sprintf("at least %d document(s) required, got %d", req.MinDocuments, len(documents)),
		})
	}

	for i, doc := range documents {
		field := fmt.Sprintf("documents[%d]", i)
		switch {
		case doc.SizeBytes <= 0:
			fields = append(fields, dErrors.FieldError{Field: field, Message: "file is empty"})
		case doc.SizeBytes > req.MaxDocumentBytes:
			fields = append(fields, dErrors.FieldError{
				Field:   field,
				Message: fmt.Sprintf("file is %d bytes, limit is %d", doc.SizeBytes, req.MaxDocumentBytes),
			})
		}
		if !req.AllowsMime(NormalizeMime(doc.MimeType)) {
			fields = append(fields, dErrors.FieldError{
				Field:   field,
				Message: fmt.Sprintf("mime type %q is not allowed, expected one of %s", doc.MimeType, strings.Join(req.AllowedMimeTypes, ", ")),
			})
		}
	}

	if utf8.RuneCountInString(userNotes) > MaxUserNotesLength {
		fields = append(fields, dErrors.FieldError{
			Field:   "user_notes",
			Message: fmt.Sprintf("must be at most %d characters", MaxUserNotesLength),
		})
	}

	if len(fields) > 0 {
		return dErrors.Validation("submission is invalid", fields)
	}
	return nil
}

// NormalizeMime lowercases a media type and drops its parameters.
// Unparseable values come back empty so they never match an allow list.
func NormalizeMime(raw string) string {
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return mt
}
