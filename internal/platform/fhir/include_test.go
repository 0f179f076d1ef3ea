package fhir

import (
	"context"
	"fmt"
	"testing"
)

func org(id string, partOf string, endpoints ...string) map[string]interface{} {
	m := map[string]interface{}{"resourceType": "Organization", "id": id}
	if partOf != "" {
		m["partOf"] = map[string]interface{}{"reference": "Organization/" + partOf}
	}
	if len(endpoints) > 0 {
		var refs []interface{}
		for _, ep := range endpoints {
			refs = append(refs, map[string]interface{}{"reference": "Endpoint/" + ep})
		}
		m["endpoint"] = refs
	}
	return m
}

func consentWithActors(id string, orgIDs ...string) map[string]interface{} {
	var actors []interface{}
	for _, orgID := range orgIDs {
		actors = append(actors, map[string]interface{}{
			"reference": map[string]interface{}{"reference": "Organization/" + orgID},
		})
	}
	return map[string]interface{}{
		"resourceType": "Consent",
		"id":           id,
		"provision":    map[string]interface{}{"actor": actors},
	}
}

func mapFetcher(resources map[string]map[string]interface{}) ResourceFetcher {
	return func(ctx context.Context, id string) (interface{}, error) {
		res, ok := resources[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return res, nil
	}
}

func newTestResolver(orgs, endpoints map[string]map[string]interface{}) *IncludeResolver {
	r := NewIncludeResolver()
	r.RegisterFetcher("Organization", mapFetcher(orgs))
	r.RegisterFetcher("Endpoint", mapFetcher(endpoints))
	r.RegisterReference("Consent", "actor", "Organization", ActorReferences())
	r.RegisterReference("Organization", "endpoint", "Endpoint", ReferenceList("endpoint"))
	r.RegisterReference("Organization", "partof", "Organization", SingleReference("partOf"))
	return r
}

func fullURLs(entries []BundleEntry) map[string]bool {
	urls := make(map[string]bool, len(entries))
	for _, e := range entries {
		urls[e.FullURL] = true
	}
	return urls
}

func TestResolveInclude(t *testing.T) {
	orgs := map[string]map[string]interface{}{"org-a": org("org-a", "")}
	r := newTestResolver(orgs, nil)

	entries := r.Resolve(context.Background(),
		[]interface{}{consentWithActors("c-1", "org-a")},
		[]string{"Consent:actor"}, nil, nil)

	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	if entries[0].FullURL != "Organization/org-a" {
		t.Errorf("fullURL = %q", entries[0].FullURL)
	}
	if entries[0].Search == nil || entries[0].Search.Mode != "include" {
		t.Errorf("search mode = %+v, want include", entries[0].Search)
	}
}

func TestResolveIterateWalksTheGraph(t *testing.T) {
	orgs := map[string]map[string]interface{}{
		"org-a":      org("org-a", "org-parent", "ep-1"),
		"org-parent": org("org-parent", ""),
	}
	endpoints := map[string]map[string]interface{}{
		"ep-1": {"resourceType": "Endpoint", "id": "ep-1"},
	}
	r := newTestResolver(orgs, endpoints)

	entries := r.Resolve(context.Background(),
		[]interface{}{consentWithActors("c-1", "org-a")},
		[]string{"Consent:actor"},
		[]string{"Organization:endpoint", "Organization:partof"}, nil)

	urls := fullURLs(entries)
	for _, want := range []string{"Organization/org-a", "Endpoint/ep-1", "Organization/org-parent"} {
		if !urls[want] {
			t.Errorf("missing include %s (got %v)", want, urls)
		}
	}
	if len(entries) != 3 {
		t.Errorf("entry count = %d, want 3", len(entries))
	}
}

func TestResolveIterateDepthIsBounded(t *testing.T) {
	// org-1 -> org-2 -> org-3 -> org-4 -> org-5 through partOf.
	orgs := map[string]map[string]interface{}{}
	for i := 1; i <= 5; i++ {
		parent := ""
		if i < 5 {
			parent = fmt.Sprintf("org-%d", i+1)
		}
		orgs[fmt.Sprintf("org-%d", i)] = org(fmt.Sprintf("org-%d", i), parent)
	}
	r := newTestResolver(orgs, nil)

	entries := r.Resolve(context.Background(),
		[]interface{}{orgs["org-1"]},
		[]string{"Organization:partof"},
		[]string{"Organization:partof"}, nil)

	urls := fullURLs(entries)
	for _, want := range []string{"Organization/org-2", "Organization/org-3", "Organization/org-4"} {
		if !urls[want] {
			t.Errorf("missing include %s", want)
		}
	}
	if urls["Organization/org-5"] {
		t.Error("iteration walked past the depth bound")
	}
}

func TestResolveDeduplicates(t *testing.T) {
	orgs := map[string]map[string]interface{}{"org-a": org("org-a", "")}
	r := newTestResolver(orgs, nil)

	entries := r.Resolve(context.Background(),
		[]interface{}{
			consentWithActors("c-1", "org-a"),
			consentWithActors("c-2", "org-a"),
		},
		[]string{"Consent:actor"}, nil, nil)

	if len(entries) != 1 {
		t.Errorf("entry count = %d, want the shared actor included once", len(entries))
	}
}

func TestResolveIgnoresUnknownParams(t *testing.T) {
	orgs := map[string]map[string]interface{}{"org-a": org("org-a", "")}
	r := newTestResolver(orgs, nil)

	entries := r.Resolve(context.Background(),
		[]interface{}{consentWithActors("c-1", "org-a")},
		[]string{"Consent:nonsense", "garbage"}, nil, nil)
	if len(entries) != 0 {
		t.Errorf("entry count = %d, want 0", len(entries))
	}
}

func TestResolveAppliesAllowedFilter(t *testing.T) {
	orgs := map[string]map[string]interface{}{
		"org-a": org("org-a", ""),
		"org-b": org("org-b", ""),
	}
	r := newTestResolver(orgs, nil)

	entries := r.Resolve(context.Background(),
		[]interface{}{consentWithActors("c-1", "org-a", "org-b")},
		[]string{"Consent:actor"}, nil,
		func(fullURL string) bool { return fullURL != "Organization/org-b" })

	urls := fullURLs(entries)
	if !urls["Organization/org-a"] || urls["Organization/org-b"] {
		t.Errorf("filter not applied: %v", urls)
	}
}

func TestResolveSkipsDanglingReferences(t *testing.T) {
	r := newTestResolver(map[string]map[string]interface{}{}, nil)

	entries := r.Resolve(context.Background(),
		[]interface{}{consentWithActors("c-1", "org-gone")},
		[]string{"Consent:actor"}, nil, nil)
	if len(entries) != 0 {
		t.Errorf("entry count = %d, want dangling reference skipped", len(entries))
	}
}
