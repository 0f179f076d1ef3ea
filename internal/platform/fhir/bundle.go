package fhir

import (
	"encoding/json"
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

// NewSearchBundle creates a searchset Bundle from matched resources. Only the
// match entries count toward total; include entries are appended afterwards
// with AddIncludes.
func NewSearchBundle(resources []interface{}, baseURL string) *Bundle {
	now := time.Now().UTC()
	total := len(resources)
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, _ := json.Marshal(r)
		entries[i] = BundleEntry{
			FullURL:  extractFullURL(r),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		}
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link: []BundleLink{
			{Relation: "self", URL: baseURL},
		},
		Entry: entries,
	}
}

// AddIncludes appends include-mode entries to a searchset Bundle. The total
// stays the match count.
func (b *Bundle) AddIncludes(entries []BundleEntry) {
	b.Entry = append(b.Entry, entries...)
}

// NewCollectionBundle creates a collection Bundle (used by the DS resource
// server for the patient-keyed resource set).
func NewCollectionBundle(resources []interface{}) *Bundle {
	now := time.Now().UTC()
	total := len(resources)
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, _ := json.Marshal(r)
		entries[i] = BundleEntry{FullURL: extractFullURL(r), Resource: raw}
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "collection",
		Total:        &total,
		Timestamp:    &now,
		Entry:        entries,
	}
}

// extractFullURL builds a "Type/id" fullUrl from a resource's own fields.
func extractFullURL(r interface{}) string {
	m, ok := toMap(r)
	if !ok {
		return ""
	}
	rt, _ := m["resourceType"].(string)
	id, _ := m["id"].(string)
	if rt != "" && id != "" {
		return rt + "/" + id
	}
	return ""
}

// toMap converts a resource to its generic map form via a JSON round-trip.
func toMap(v interface{}) (map[string]interface{}, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		return m, true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return m, true
}
