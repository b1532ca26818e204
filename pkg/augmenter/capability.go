package augmenter

import "slices"

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet describes event and write selection criteria for capability negotiation.
type InterestSet struct {
	Kinds        []EventKind
	ContentTypes []ContentType
	Operations   []WriteOperation
	// RequirePublished keeps events whose entry is live.
	RequirePublished bool
	// RequireAPI keeps application content types only.
	RequireAPI bool
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !slices.Contains(i.Kinds, event.Kind) {
		return false
	}
	if !i.matchesContentType(event.Entry.ContentType) {
		return false
	}
	if i.RequirePublished && !event.Entry.IsPublished() {
		return false
	}

	return true
}

// MatchesWrite reports whether a pending write satisfies the declared interest set.
func (i InterestSet) MatchesWrite(req *WriteRequest) bool {
	if req == nil {
		return false
	}
	if len(i.Operations) > 0 && !slices.Contains(i.Operations, req.Operation) {
		return false
	}

	return i.matchesContentType(req.ContentType)
}

func (i InterestSet) matchesContentType(contentType ContentType) bool {
	if i.RequireAPI && !contentType.IsAPI() {
		return false
	}
	if len(i.ContentTypes) > 0 && !slices.Contains(i.ContentTypes, contentType) {
		return false
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !allIncluded(filter.Kinds, i.Kinds) {
		return false
	}
	if len(i.ContentTypes) > 0 && !allIncluded(filter.ContentTypes, i.ContentTypes) {
		return false
	}
	if len(i.Operations) > 0 && !allIncluded(filter.Operations, i.Operations) {
		return false
	}
	if i.RequirePublished && !filter.RequirePublished {
		return false
	}
	if i.RequireAPI && !filter.RequireAPI {
		return false
	}

	return true
}

// allIncluded reports whether subset is non-empty and fully contained in allowed.
// An empty subset means "everything" and is never covered by a narrowed allow-list.
func allIncluded[T comparable](subset, allowed []T) bool {
	if len(subset) == 0 {
		return false
	}
	for _, item := range subset {
		if !slices.Contains(allowed, item) {
			return false
		}
	}

	return true
}
