package digest

import (
	"hash/fnv"
	"strings"
	"time"
)

// Category buckets headlines into the digest sections.
type Category string

const (
	CategoryCrypto       Category = "crypto"
	CategoryIGaming      Category = "igaming"
	CategoryCapitalRaise Category = "capital-raise"
)

// Item is one headline flowing through the pipeline.
type Item struct {
	ID        uint64
	Title     string
	URL       string
	Source    string
	Emoji     string
	Category  Category
	Published time.Time
}

// ItemID derives a stable id from the headline title. Titles are the only
// field that is stable across feeds republishing the same story, so the id
// is a hash of the normalized title.
func ItemID(title string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalizeTitle(title)))
	return h.Sum64()
}

func normalizeTitle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}
