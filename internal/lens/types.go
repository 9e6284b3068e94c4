package lens

// SearchResult is the outcome of one reverse image search
type SearchResult struct {
	// Match is the engine's best guess at the subject, nil when there is none
	Match   *MatchItem    `json:"match"`
	Similar []SimilarItem `json:"similar"`
}

// MatchItem is the direct identification of the queried image
type MatchItem struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	PageURL   string `json:"pageURL"`
}

// SimilarItem is one visually similar image and the page it appears on.
// Empty Thumbnail, Price and Currency mean the engine did not provide them.
type SimilarItem struct {
	Title string `json:"title"`
	// SimilarityScore is passed through as the engine reports it; its units are unknown
	SimilarityScore float64 `json:"similarityScore"`
	Thumbnail       string  `json:"thumbnail,omitempty"`
	PageURL         string  `json:"pageURL"`
	SourceWebsite   string  `json:"sourceWebsite"`
	Price           string  `json:"price,omitempty"`
	Currency        string  `json:"currency,omitempty"`
}

// clone returns a deep copy so cached results cannot be changed through a caller's copy
func (r *SearchResult) clone() *SearchResult {
	out := &SearchResult{Similar: append([]SimilarItem{}, r.Similar...)}
	if r.Match != nil {
		m := *r.Match
		out.Match = &m
	}
	return out
}
