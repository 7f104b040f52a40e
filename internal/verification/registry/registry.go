// Package registry is the closed catalog of verification types and what each
// one requires from a submission.
package registry

import (
	"fmt"
	"slices"
	"strings"

	"vouch/internal/verification/models"
	dErrors "vouch/pkg/domain-errors"
	vstrings "vouch/pkg/platform/strings"
)

const mib = 1 << 20

// Requirements describes what a submission of one type must carry.
type Requirements struct {
	Type             models.VerificationType `json:"verification_type"`
	Description      string                  `json:"description"`
	RequiredFields   []string                `json:"required_fields"`
	MinDocuments     int                     `json:"min_documents"`
	MaxDocumentBytes int64                   `json:"max_document_bytes"`
	AllowedMimeTypes []string                `json:"allowed_mime_types"`
}

// AllowsMime reports whether a normalized mime type is accepted.
func (r Requirements) AllowsMime(mime string) bool {
	return slices.Contains(r.AllowedMimeTypes, mime)
}

func (r Requirements) clone() Requirements {
	r.RequiredFields = slices.Clone(r.RequiredFields)
	r.AllowedMimeTypes = slices.Clone(r.AllowedMimeTypes)
	return r
}

// Registry is immutable once built; every accessor returns copies.
type Registry struct {
	order []models.VerificationType
	byKey map[models.VerificationType]Requirements
}

// New builds a registry from definitions, rejecting duplicates and
// definitions that could never be satisfied.
func New(defs ...Requirements) (*Registry, error) {
	r := &Registry{byKey: make(map[models.VerificationType]Requirements, len(defs))}
	for _, d := range defs {
		if d.Type == "" {
			return nil, fmt.Errorf("verification type name is required")
		}
		if _, dup := r.byKey[d.Type]; dup {
			return nil, fmt.Errorf("verification type %q defined twice", d.Type)
		}
		if d.MinDocuments < 1 {
			return nil, fmt.Errorf("verification type %q: min documents must be at least 1", d.Type)
		}
		if d.MaxDocumentBytes <= 0 {
			return nil, fmt.Errorf("verification type %q: max document bytes must be positive", d.Type)
		}
		d = d.clone()
		d.RequiredFields = vstrings.DedupeAndTrim(d.RequiredFields)
		d.AllowedMimeTypes = vstrings.DedupeAndTrimLower(d.AllowedMimeTypes)
		if len(d.AllowedMimeTypes) == 0 {
			return nil, fmt.Errorf("verification type %q: at least one mime type is required", d.Type)
		}
		r.order = append(r.order, d.Type)
		r.byKey[d.Type] = d
	}
	return r, nil
}

// Default returns the production catalog.
func Default() *Registry {
	r, err := New(DefaultDefinitions()...)
	if err != nil {
		panic(err)
	}
	return r
}

func DefaultDefinitions() []Requirements {
	documentMimes := []string{"image/jpeg", "image/png", "application/pdf"}
	return []Requirements{
		{
			Type:             models.TypeIdentity,
			Description:      "Government-issued photo ID matching your legal name and date of birth.",
			RequiredFields:   []string{"full_name", "date_of_birth", "document_number"},
			MinDocuments:     1,
			MaxDocumentBytes: 10 * mib,
			AllowedMimeTypes: documentMimes,
		},
		{
			Type:             models.TypePhoto,
			Description:      "A recent selfie showing your face clearly, used to match your profile photos.",
			MinDocuments:     1,
			MaxDocumentBytes: 5 * mib,
			AllowedMimeTypes: []string{"image/jpeg", "image/png", "image/heic"},
		},
		{
			Type:             models.TypeEmployment,
			Description:      "Proof of current employment such as a contract, payslip or work badge.",
			RequiredFields:   []string{"employer", "job_title"},
			MinDocuments:     1,
			MaxDocumentBytes: 10 * mib,
			AllowedMimeTypes: documentMimes,
		},
		{
			Type:             models.TypeEducation,
			Description:      "A diploma, transcript or enrollment letter from the named institution.",
			RequiredFields:   []string{"institution", "degree"},
			MinDocuments:     1,
			MaxDocumentBytes: 10 * mib,
			AllowedMimeTypes: documentMimes,
		},
	}
}

// Parse turns client input into a registered type.
func (r *Registry) Parse(s string) (models.VerificationType, error) {
	t := models.VerificationType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := r.byKey[t]; !ok {
		return "", unknownType(s)
	}
	return t, nil
}

// RequirementsFor returns a copy of the requirements for t.
func (r *Registry) RequirementsFor(t models.VerificationType) (Requirements, error) {
	req, ok := r.byKey[t]
	if !ok {
		return Requirements{}, unknownType(string(t))
	}
	return req.clone(), nil
}

// Types lists registered types in definition order.
func (r *Registry) Types() []models.VerificationType {
	return slices.Clone(r.order)
}

// All returns every definition in definition order.
func (r *Registry) All() []Requirements {
	out := make([]Requirements, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.byKey[t].clone())
	}
	return out
}

func unknownType(s string) error {
	return dErrors.New(dErrors.CodeUnknownVerificationType, fmt.Sprintf("unknown verification type %q", s))
}
