package fhir

import (
	"encoding/json"
	"fmt"
	"regexp"
)

const (
	IssueSeverityError   = "error"
	IssueSeverityWarning = "warning"

	IssueTypeStructure = "structure"
	IssueTypeRequired  = "required"
	IssueTypeValue     = "value"
)

// referencePattern matches FHIR references in the format "ResourceType/id".
var referencePattern = regexp.MustCompile(`^[A-Z][a-zA-Z]+/[a-zA-Z0-9\-\.]+$`)

// knownResourceTypes lists the FHIR R4 resource types the portal record
// browser accepts.
var knownResourceTypes = map[string]bool{
	"Patient": true, "Practitioner": true, "Organization": true,
	"Encounter": true, "Condition": true, "Observation": true,
	"AllergyIntolerance": true, "Procedure": true, "Immunization": true,
	"Medication": true, "MedicationRequest": true, "MedicationStatement": true,
	"DiagnosticReport": true, "DocumentReference": true,
	"Appointment": true, "CarePlan": true, "CareTeam": true,
	"Device": true, "Bundle": true, "OperationOutcome": true,
}

// statusValues maps resource types to their valid status codes per FHIR R4.
var statusValues = map[string][]string{
	"Encounter":           {"planned", "arrived", "triaged", "in-progress", "onleave", "finished", "cancelled", "entered-in-error", "unknown"},
	"Condition":           {"active", "recurrence", "relapse", "inactive", "remission", "resolved"},
	"Observation":         {"registered", "preliminary", "final", "amended", "corrected", "cancelled", "entered-in-error", "unknown"},
	"Procedure":           {"preparation", "in-progress", "not-done", "on-hold", "stopped", "completed", "entered-in-error", "unknown"},
	"Immunization":        {"completed", "entered-in-error", "not-done"},
	"Medication":          {"active", "inactive", "entered-in-error"},
	"MedicationRequest":   {"active", "on-hold", "cancelled", "completed", "entered-in-error", "stopped", "draft", "unknown"},
	"MedicationStatement": {"active", "completed", "entered-in-error", "intended", "stopped", "on-hold", "unknown", "not-taken"},
	"DiagnosticReport":    {"registered", "partial", "preliminary", "final", "amended", "corrected", "appended", "cancelled", "entered-in-error", "unknown"},
	"DocumentReference":   {"current", "superseded", "entered-in-error"},
	"Appointment":         {"proposed", "pending", "booked", "arrived", "fulfilled", "cancelled", "noshow", "entered-in-error", "checked-in", "waitlist"},
	"CarePlan":            {"draft", "active", "on-hold", "revoked", "completed", "entered-in-error", "unknown"},
}

// KnownResourceType reports whether the portal accepts the given type.
func KnownResourceType(resourceType string) bool {
	return knownResourceTypes[resourceType]
}

// ValidationResult holds the results of a resource validation.
type ValidationResult struct {
	Valid  bool
	Issues []OperationOutcomeIssue
}

// ToOperationOutcome converts a ValidationResult into an OperationOutcome.
func (vr *ValidationResult) ToOperationOutcome() *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue:        vr.Issues,
	}
}

// Validator provides structural FHIR R4 resource validation.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateResource validates a raw JSON resource. It checks that
// resourceType is present and known, that status values match the
// resource type's value set, and that references are well formed.
func (v *Validator) ValidateResource(data json.RawMessage) *ValidationResult {
	result := &ValidationResult{Valid: true}

	var resource map[string]any
	if err := json.Unmarshal(data, &resource); err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, OperationOutcomeIssue{
			Severity:    IssueSeverityError,
			Code:        IssueTypeStructure,
			Diagnostics: "invalid JSON: " + err.Error(),
		})
		return result
	}

	v.validateResourceType(resource, result)
	v.validateStatus(resource, result)
	v.validateReferences(resource, "", result)

	return result
}

func (v *Validator) validateResourceType(resource map[string]any, result *ValidationResult) {
	rt, ok := resource["resourceType"]
	if !ok {
		result.addError(IssueTypeRequired, "resourceType is required", "resourceType")
		return
	}

	rtStr, ok := rt.(string)
	if !ok || rtStr == "" {
		result.addError(IssueTypeValue, "resourceType must be a non-empty string", "resourceType")
		return
	}

	if !knownResourceTypes[rtStr] {
		result.addError(IssueTypeValue, fmt.Sprintf("unsupported resourceType: %s", rtStr), "resourceType")
	}
}

func (v *Validator) validateStatus(resource map[string]any, result *ValidationResult) {
	rtStr, _ := resource["resourceType"].(string)
	valid, hasSet := statusValues[rtStr]
	if !hasSet {
		return
	}

	status, ok := resource["status"]
	if !ok {
		return
	}

	statusStr, ok := status.(string)
	if !ok {
		result.addError(IssueTypeValue, "status must be a string", "status")
		return
	}

	for _, s := range valid {
		if s == statusStr {
			return
		}
	}
	result.addError(IssueTypeValue, fmt.Sprintf("invalid status %q for %s", statusStr, rtStr), "status")
}

// validateReferences walks the resource tree checking every object with a
// "reference" key against the ResourceType/id pattern.
func (v *Validator) validateReferences(node any, path string, result *ValidationResult) {
	switch val := node.(type) {
	case map[string]any:
		if ref, ok := val["reference"].(string); ok && ref != "" {
			// Contained (#id) and absolute URL references pass through.
			if ref[0] != '#' && !referencePattern.MatchString(ref) && !isAbsoluteURL(ref) {
				result.addError(IssueTypeValue, fmt.Sprintf("malformed reference: %s", ref), path+".reference")
			}
		}
		for k, child := range val {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			v.validateReferences(child, childPath, result)
		}
	case []any:
		for i, child := range val {
			v.validateReferences(child, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

func isAbsoluteURL(s string) bool {
	return len(s) > 8 && (s[:7] == "http://" || s[:8] == "https://")
}

func (vr *ValidationResult) addError(code, diagnostics, expression string) {
	vr.Valid = false
	issue := OperationOutcomeIssue{
		Severity:    IssueSeverityError,
		Code:        code,
		Diagnostics: diagnostics,
	}
	if expression != "" {
		issue.Expression = []string{expression}
	}
	vr.Issues = append(vr.Issues, issue)
}
