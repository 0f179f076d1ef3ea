package fhir

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors returned by domain services; handlers map them to the
// corresponding HTTP status and OperationOutcome.
var (
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

type Meta struct {
	VersionID   string     `json:"versionId,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Profile     []string   `json:"profile,omitempty"`
	Tag         []Coding   `json:"tag,omitempty"`
}

// HasTag reports whether the meta carries a tag with the given system and code.
func (m *Meta) HasTag(system, code string) bool {
	if m == nil {
		return false
	}
	for _, t := range m.Tag {
		if t.System == system && t.Code == code {
			return true
		}
	}
	return false
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// HasCoding reports whether the concept contains a coding with the given
// system and code.
func (cc *CodeableConcept) HasCoding(system, code string) bool {
	if cc == nil {
		return false
	}
	for _, c := range cc.Coding {
		if c.System == system && c.Code == code {
			return true
		}
	}
	return false
}

type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
}

// MatchesToken matches an identifier against a search token of the form
// "system|value" or "value".
func (id *Identifier) MatchesToken(token string) bool {
	if id == nil {
		return false
	}
	if system, value, ok := strings.Cut(token, "|"); ok {
		return id.System == system && id.Value == value
	}
	return id.Value == token
}

type Reference struct {
	Reference  string      `json:"reference,omitempty"`
	Type       string      `json:"type,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
	Display    string      `json:"display,omitempty"`
}

// ID returns the id portion of a "Type/id" reference string.
func (r *Reference) ID() string {
	if r == nil {
		return ""
	}
	_, id := SplitReference(r.Reference)
	return id
}

type Period struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Extension supports the subset of FHIR extensions this system carries:
// string values, reference values, and one level of nesting (as used by the
// applicable-certificates extension).
type Extension struct {
	URL            string      `json:"url"`
	ValueString    string      `json:"valueString,omitempty"`
	ValueReference *Reference  `json:"valueReference,omitempty"`
	Extension      []Extension `json:"extension,omitempty"`
}

// FindExtension returns the first extension with the given URL, or nil.
func FindExtension(exts []Extension, url string) *Extension {
	for i := range exts {
		if exts[i].URL == url {
			return &exts[i]
		}
	}
	return nil
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

// SplitReference splits a "Type/id" reference string. A bare id is returned
// with an empty type.
func SplitReference(ref string) (resourceType, id string) {
	if t, rest, ok := strings.Cut(ref, "/"); ok {
		return t, rest
	}
	return "", ref
}

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

// OperationOutcome severity levels per FHIR R4.
const (
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes per FHIR R4.
const (
	IssueTypeInvalid    = "invalid"
	IssueTypeRequired   = "required"
	IssueTypeNotFound   = "not-found"
	IssueTypeConflict   = "conflict"
	IssueTypeProcessing = "processing"
	IssueTypeSecurity   = "security"
	IssueTypeLogin      = "login"
	IssueTypeForbidden  = "forbidden"
	IssueTypeDuplicate  = "duplicate"
)

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeProcessing, diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, resourceType+"/"+id+" not found")
}

// LoginOutcome is returned with 401 when the caller presented no verified
// client certificate or no usable bearer token.
func LoginOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeLogin, diagnostics)
}

// ForbiddenOutcome is returned with 403 when an authenticated caller is not
// permitted to perform the operation.
func ForbiddenOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeForbidden, diagnostics)
}

func RequiredFieldOutcome(field string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    IssueSeverityError,
				Code:        IssueTypeRequired,
				Diagnostics: fmt.Sprintf("%s is required", field),
				Expression:  []string{field},
			},
		},
	}
}
