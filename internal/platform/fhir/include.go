package fhir

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// ResourceFetcher retrieves a single resource by id and returns a value that
// marshals to its FHIR JSON form.
type ResourceFetcher func(ctx context.Context, id string) (interface{}, error)

// RefExtractor pulls reference strings ("Type/id") for one search parameter
// out of a resource's generic map form.
type RefExtractor func(resource map[string]interface{}) []string

// maxIterateDepth bounds the _include:iterate expansion over the
// Organization/Endpoint reference DAG.
const maxIterateDepth = 2

// IncludeResolver expands _include and _include:iterate parameters over the
// reference graph.
type IncludeResolver struct {
	mu       sync.RWMutex
	fetchers map[string]ResourceFetcher
	refs     map[string]map[string]includeRef
}

type includeRef struct {
	targetType string
	extract    RefExtractor
}

func NewIncludeResolver() *IncludeResolver {
	return &IncludeResolver{
		fetchers: make(map[string]ResourceFetcher),
		refs:     make(map[string]map[string]includeRef),
	}
}

// RegisterFetcher registers a resource fetcher for a resource type.
func (r *IncludeResolver) RegisterFetcher(resourceType string, fetcher ResourceFetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[resourceType] = fetcher
}

// RegisterReference registers sourceType.searchParam -> targetType with its
// extractor.
func (r *IncludeResolver) RegisterReference(sourceType, searchParam, targetType string, extract RefExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs[sourceType] == nil {
		r.refs[sourceType] = make(map[string]includeRef)
	}
	r.refs[sourceType][searchParam] = includeRef{targetType: targetType, extract: extract}
}

// Resolve expands includeParams over the matched resources, then applies
// iterateParams transitively over the included resources (bounded BFS).
// The allowed filter, when non-nil, drops any include whose "Type/id" key it
// rejects; unknown parameters are ignored.
func (r *IncludeResolver) Resolve(ctx context.Context, matches []interface{}, includeParams, iterateParams []string, allowed func(fullURL string) bool) []BundleEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(matches) == 0 || (len(includeParams) == 0 && len(iterateParams) == 0) {
		return nil
	}

	seen := make(map[string]bool)
	var frontier []map[string]interface{}
	for _, res := range matches {
		m, ok := toMap(res)
		if !ok {
			continue
		}
		seen[extractFullURL(m)] = true
		frontier = append(frontier, m)
	}

	var entries []BundleEntry
	fetched := r.expand(ctx, frontier, includeParams, seen, allowed, &entries)

	// Iterated includes walk from what the previous pass pulled in.
	for depth := 0; depth < maxIterateDepth && len(fetched) > 0; depth++ {
		fetched = r.expand(ctx, fetched, iterateParams, seen, allowed, &entries)
	}

	return entries
}

// expand applies one pass of include parameters to the frontier and returns
// the newly fetched resources.
func (r *IncludeResolver) expand(ctx context.Context, frontier []map[string]interface{}, params []string, seen map[string]bool, allowed func(string) bool, entries *[]BundleEntry) []map[string]interface{} {
	var next []map[string]interface{}
	for _, param := range params {
		sourceType, searchParam, ok := strings.Cut(param, ":")
		if !ok {
			continue
		}
		refDef, ok := r.refs[sourceType][searchParam]
		if !ok {
			continue
		}
		fetcher, ok := r.fetchers[refDef.targetType]
		if !ok {
			continue
		}
		for _, res := range frontier {
			if rt, _ := res["resourceType"].(string); rt != sourceType {
				continue
			}
			for _, ref := range refDef.extract(res) {
				refType, id := SplitReference(ref)
				if refType != refDef.targetType || id == "" {
					continue
				}
				key := refType + "/" + id
				if seen[key] {
					continue
				}
				seen[key] = true
				if allowed != nil && !allowed(key) {
					continue
				}
				resource, err := fetcher(ctx, id)
				if err != nil {
					continue // referenced resource may have been removed
				}
				m, ok := toMap(resource)
				if !ok {
					continue
				}
				raw, _ := json.Marshal(resource)
				*entries = append(*entries, BundleEntry{
					FullURL:  key,
					Resource: raw,
					Search:   &BundleSearch{Mode: "include"},
				})
				next = append(next, m)
			}
		}
	}
	return next
}

// SingleReference extracts one reference at a top-level field, e.g. partOf.
func SingleReference(field string) RefExtractor {
	return func(resource map[string]interface{}) []string {
		refMap, ok := resource[field].(map[string]interface{})
		if !ok {
			return nil
		}
		ref, _ := refMap["reference"].(string)
		if ref == "" {
			return nil
		}
		return []string{ref}
	}
}

// ReferenceList extracts references from a top-level list field, e.g.
// Organization.endpoint.
func ReferenceList(field string) RefExtractor {
	return func(resource map[string]interface{}) []string {
		items, ok := resource[field].([]interface{})
		if !ok {
			return nil
		}
		var refs []string
		for _, item := range items {
			refMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if ref, _ := refMap["reference"].(string); ref != "" {
				refs = append(refs, ref)
			}
		}
		return refs
	}
}

// ActorReferences extracts the actor references from Consent.provision.actor.
func ActorReferences() RefExtractor {
	return func(resource map[string]interface{}) []string {
		provision, ok := resource["provision"].(map[string]interface{})
		if !ok {
			return nil
		}
		actors, ok := provision["actor"].([]interface{})
		if !ok {
			return nil
		}
		var refs []string
		for _, a := range actors {
			actor, ok := a.(map[string]interface{})
			if !ok {
				continue
			}
			refMap, ok := actor["reference"].(map[string]interface{})
			if !ok {
				continue
			}
			if ref, _ := refMap["reference"].(string); ref != "" {
				refs = append(refs, ref)
			}
		}
		return refs
	}
}
