package lens

import (
	"strings"
)

// Positions inside the payload. They are inferred from observed responses; the
// format belongs to the remote service and has no published schema.
var (
	matchTitlePath     = []int{0, 1, 8, 12, 0, 0, 0}
	matchThumbnailPath = []int{0, 1, 8, 12, 0, 2, 0, 0}
	matchPageURLPath   = []int{0, 1, 8, 12, 0, 2, 0, 4}

	// With a direct match the similar items move to the second branch
	similarWithMatchPath = []int{1, 1, 8, 8, 0, 12}
	similarNoMatchPath   = []int{0, 1, 8, 8, 0, 12}
)

// Positions inside one similar item entry
var (
	entryThumbnailPath = []int{0, 0}
	entryScorePath     = []int{1}
	entryTitlePath     = []int{3}
	entryPageURLPath   = []int{5}
	entrySourcePath    = []int{14}
	entryPricePath     = []int{0, 7, 1}
	entryCurrencyPath  = []int{0, 7, 5}
)

// ParsePage extracts the payload from a results page and parses it
func ParsePage(page []byte) (*SearchResult, error) {
	payload, err := ExtractPayload(page)
	if err != nil {
		return nil, err
	}
	return ParsePayload(payload)
}

// ParsePayload builds a SearchResult from the extracted payload tree
func ParsePayload(payload Node) (*SearchResult, error) {
	result := &SearchResult{
		Match:   parseMatch(payload),
		Similar: []SimilarItem{},
	}

	path := similarNoMatchPath
	if result.Match != nil {
		path = similarWithMatchPath
	}

	entries, ok := payload.At(path...)
	if !ok {
		return result, nil
	}
	if err := requireArray(entries, "similar items"); err != nil {
		pe := err.(*ParseError)
		pe.Path = path
		return nil, pe
	}

	for i, entry := range entries.Elems() {
		item, err := parseSimilarItem(entry)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Entry = i
			}
			return nil, err
		}
		result.Similar = append(result.Similar, item)
	}

	return result, nil
}

// parseMatch returns nil when any part of the match record is missing
func parseMatch(payload Node) *MatchItem {
	title, ok := stringAt(payload, matchTitlePath)
	if !ok {
		return nil
	}
	thumbnail, ok := stringAt(payload, matchThumbnailPath)
	if !ok {
		return nil
	}
	pageURL, ok := stringAt(payload, matchPageURLPath)
	if !ok {
		return nil
	}
	return &MatchItem{Title: title, Thumbnail: thumbnail, PageURL: pageURL}
}

func stringAt(n Node, path []int) (string, bool) {
	child, ok := n.At(path...)
	if !ok {
		return "", false
	}
	return child.Str()
}

func parseSimilarItem(entry Node) (SimilarItem, error) {
	if err := requireArray(entry, "similar item"); err != nil {
		return SimilarItem{}, err
	}

	title, err := requireString(entry, "title", entryTitlePath...)
	if err != nil {
		return SimilarItem{}, err
	}
	score, err := requireNumber(entry, "similarity score", entryScorePath...)
	if err != nil {
		return SimilarItem{}, err
	}
	pageURL, err := requireString(entry, "page URL", entryPageURLPath...)
	if err != nil {
		return SimilarItem{}, err
	}
	source, err := requireString(entry, "source website", entrySourcePath...)
	if err != nil {
		return SimilarItem{}, err
	}

	return SimilarItem{
		Title:           title,
		SimilarityScore: score,
		Thumbnail:       optionalString(entry, entryThumbnailPath...),
		PageURL:         pageURL,
		SourceWebsite:   source,
		Price:           NormalisePrice(optionalString(entry, entryPricePath...)),
		Currency:        optionalString(entry, entryCurrencyPath...),
	}, nil
}

// NormalisePrice keeps only digits and decimal points, so "$1,234.56" becomes
// "1234.56". It returns "" when no digit is left.
func NormalisePrice(price string) string {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, price)
	if !strings.ContainsAny(cleaned, "0123456789") {
		return ""
	}
	return cleaned
}
