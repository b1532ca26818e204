package tagsummary

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"
)

const fingerprintTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Fingerprint hashes the tag slug and the identity and freshness of its
// source articles. A summary whose cache key equals the fingerprint of the
// current sources does not need regeneration.
func Fingerprint(tagSlug string, sources []augmenter.Article) string {
	sorted := make([]augmenter.Article, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DocumentID < sorted[j].DocumentID
	})

	parts := make([]string, 0, len(sorted))
	for _, source := range sorted {
		parts = append(parts, source.DocumentID+"|"+fingerprintBasis(source))
	}

	sum := sha256.Sum256([]byte(tagSlug + "|" + strings.Join(parts, "||")))

	return hex.EncodeToString(sum[:])
}

func fingerprintBasis(source augmenter.Article) string {
	switch {
	case !source.UpdatedAt.IsZero():
		return formatTime(source.UpdatedAt)
	case source.PublicationDate != nil:
		return formatTime(*source.PublicationDate)
	case source.PublishedAt != nil:
		return formatTime(*source.PublishedAt)
	default:
		return ""
	}
}

func formatTime(at time.Time) string {
	return at.UTC().Format(fingerprintTimeLayout)
}
