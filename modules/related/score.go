package related

import (
	"slices"
	"sort"
	"time"

	"ex-augmenter/pkg/augmenter"
)

const defaultRelatedLimit = 3

type scoredCandidate struct {
	documentID string
	similarity float64
	shared     int
	at         time.Time
}

// rankRelated orders candidates by tag similarity to sourceSlugs and returns
// the document ids of the best limit candidates.
//
// Ordering is Jaccard similarity desc, shared tag count desc, then
// publishedAt (createdAt for drafts) desc. Equal candidates keep input order.
func rankRelated(sourceSlugs []string, candidates []augmenter.Article, limit int) []string {
	source := make(map[string]struct{}, len(sourceSlugs))
	for _, slug := range sourceSlugs {
		source[slug] = struct{}{}
	}

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, scoreCandidate(source, candidate))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		left, right := scored[i], scored[j]
		if left.similarity != right.similarity {
			return left.similarity > right.similarity
		}
		if left.shared != right.shared {
			return left.shared > right.shared
		}

		return left.at.After(right.at)
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	ids := make([]string, 0, len(scored))
	for _, candidate := range scored {
		ids = append(ids, candidate.documentID)
	}

	return ids
}

func scoreCandidate(source map[string]struct{}, candidate augmenter.Article) scoredCandidate {
	union := make(map[string]struct{}, len(source)+len(candidate.Tags))
	for slug := range source {
		union[slug] = struct{}{}
	}

	shared := 0
	for _, tag := range candidate.Tags {
		union[tag.Slug] = struct{}{}
		if tag.Slug == "" {
			continue
		}
		if _, ok := source[tag.Slug]; ok {
			shared++
		}
	}

	similarity := 0.0
	if len(union) > 0 {
		similarity = float64(shared) / float64(len(union))
	}

	at := candidate.CreatedAt
	if candidate.PublishedAt != nil {
		at = *candidate.PublishedAt
	}

	return scoredCandidate{
		documentID: candidate.DocumentID,
		similarity: similarity,
		shared:     shared,
		at:         at,
	}
}

func sameOrder(current []string, next []string) bool {
	return slices.Equal(current, next)
}
