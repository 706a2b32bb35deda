package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// NewSearchBundle creates a searchset Bundle from raw resources. Each
// entry gets a fullUrl derived from the resource's type and id when
// those fields can be extracted.
func NewSearchBundle(resources []json.RawMessage, total int, baseURL string) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, raw := range resources {
		entries[i] = BundleEntry{
			FullURL:  fullURLFor(raw, baseURL),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		}
	}

	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Entry:        entries,
	}
}

// AddLink appends a link with the given relation to the bundle.
func (b *Bundle) AddLink(relation, url string) {
	b.Link = append(b.Link, BundleLink{Relation: relation, URL: url})
}

func fullURLFor(raw json.RawMessage, baseURL string) string {
	var probe struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	if probe.ResourceType == "" || probe.ID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", baseURL, probe.ResourceType, probe.ID)
}
