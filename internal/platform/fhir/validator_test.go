package fhir

import (
	"encoding/json"
	"testing"
)

func TestValidateResourceAcceptsValidObservation(t *testing.T) {
	v := NewValidator()
	res := v.ValidateResource(json.RawMessage(`{
		"resourceType": "Observation",
		"id": "obs-1",
		"status": "final",
		"subject": {"reference": "Patient/p1"}
	}`))
	if !res.Valid {
		t.Fatalf("expected valid, got issues: %+v", res.Issues)
	}
}

func TestValidateResourceMissingType(t *testing.T) {
	v := NewValidator()
	res := v.ValidateResource(json.RawMessage(`{"id": "x"}`))
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if res.Issues[0].Code != IssueTypeRequired {
		t.Errorf("expected required issue, got %s", res.Issues[0].Code)
	}
}

func TestValidateResourceUnknownType(t *testing.T) {
	v := NewValidator()
	res := v.ValidateResource(json.RawMessage(`{"resourceType": "ExplanationOfBenefit"}`))
	if res.Valid {
		t.Fatal("expected invalid for unsupported type")
	}
}

func TestValidateResourceBadStatus(t *testing.T) {
	v := NewValidator()
	res := v.ValidateResource(json.RawMessage(`{
		"resourceType": "MedicationRequest",
		"status": "floating"
	}`))
	if res.Valid {
		t.Fatal("expected invalid status")
	}
}

func TestValidateResourceMalformedReference(t *testing.T) {
	v := NewValidator()
	res := v.ValidateResource(json.RawMessage(`{
		"resourceType": "Condition",
		"status": "active",
		"subject": {"reference": "patient p1"}
	}`))
	if res.Valid {
		t.Fatal("expected invalid reference")
	}
}

func TestValidateResourceAllowsContainedAndAbsoluteRefs(t *testing.T) {
	v := NewValidator()
	res := v.ValidateResource(json.RawMessage(`{
		"resourceType": "DiagnosticReport",
		"status": "final",
		"subject": {"reference": "#contained-patient"},
		"performer": [{"reference": "https://ehr.example.com/fhir/Practitioner/77"}]
	}`))
	if !res.Valid {
		t.Fatalf("expected valid, got issues: %+v", res.Issues)
	}
}

func TestValidateResourceInvalidJSON(t *testing.T) {
	v := NewValidator()
	res := v.ValidateResource(json.RawMessage(`{not json`))
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if res.Issues[0].Code != IssueTypeStructure {
		t.Errorf("expected structure issue, got %s", res.Issues[0].Code)
	}
}

func TestToOperationOutcome(t *testing.T) {
	v := NewValidator()
	res := v.ValidateResource(json.RawMessage(`{"id": "x"}`))
	oo := res.ToOperationOutcome()
	if oo.ResourceType != "OperationOutcome" || len(oo.Issue) == 0 {
		t.Fatalf("bad outcome: %+v", oo)
	}
}

func TestKnownResourceType(t *testing.T) {
	if !KnownResourceType("Patient") {
		t.Error("Patient should be known")
	}
	if KnownResourceType("Invoice") {
		t.Error("Invoice should not be known")
	}
}
