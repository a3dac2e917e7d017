package domain

import "strings"

const (
	collectionMinLen = 3
	collectionMaxLen = 63
	collectionPrefix = "collection_"

	// CommonCollection is the shared collection every document also
	// lands in, so unrouted queries still find everything.
	CommonCollection = "common"
)

// CollectionName normalizes a domain name into a valid vector
// collection identifier: lowercase, [a-z0-9_] only, runs of other
// characters collapsed to single underscores, length 3 to 63. Names too
// short after normalization are padded with the "collection_" prefix;
// an empty result falls back to the common collection.
func CollectionName(domain string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(domain)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	name := strings.Trim(b.String(), "_")
	if name == "" {
		return CommonCollection
	}
	if len(name) < collectionMinLen {
		name = collectionPrefix + name
	}
	if len(name) > collectionMaxLen {
		name = strings.Trim(name[:collectionMaxLen], "_")
	}
	return name
}
