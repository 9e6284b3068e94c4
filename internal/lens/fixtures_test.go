package lens

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// setAt places value at an index path inside nested arrays, padding with nulls
func setAt(arr []any, path []int, value any) []any {
	i := path[0]
	for len(arr) <= i {
		arr = append(arr, nil)
	}
	if len(path) == 1 {
		arr[i] = value
		return arr
	}
	child, _ := arr[i].([]any)
	arr[i] = setAt(child, path[1:], value)
	return arr
}

type entryOpt func([]any) []any

func withThumbnail(thumb string) entryOpt {
	return func(e []any) []any { return setAt(e, entryThumbnailPath, thumb) }
}

func withPrice(price, currency string) entryOpt {
	return func(e []any) []any {
		e = setAt(e, entryPricePath, price)
		return setAt(e, entryCurrencyPath, currency)
	}
}

func similarEntry(title string, score float64, pageURL, source string, opts ...entryOpt) []any {
	var e []any
	e = setAt(e, entryTitlePath, title)
	e = setAt(e, entryScorePath, score)
	e = setAt(e, entryPageURLPath, pageURL)
	e = setAt(e, entrySourcePath, source)
	for _, opt := range opts {
		e = opt(e)
	}
	return e
}

// buildPayload lays out a payload tree the way a results page does
func buildPayload(match *MatchItem, similar ...[]any) []any {
	var payload []any
	path := similarNoMatchPath
	if match != nil {
		payload = setAt(payload, matchTitlePath, match.Title)
		payload = setAt(payload, matchThumbnailPath, match.Thumbnail)
		payload = setAt(payload, matchPageURLPath, match.PageURL)
		path = similarWithMatchPath
	}
	entries := make([]any, 0, len(similar))
	for _, e := range similar {
		entries = append(entries, e)
	}
	return setAt(payload, path, entries)
}

func callbackScript(t *testing.T, key string, payload any) string {
	t.Helper()
	data, err := json.Marshal([]any{nil, payload})
	require.NoError(t, err)
	return fmt.Sprintf("AF_initDataCallback({key: '%s', hash: '4', data:%s, sideChannel: {}});", key, data)
}

// resultsPage wraps payload in a page with a decoy callback before the real one
func resultsPage(t *testing.T, payload any) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><title>Lens</title>")
	b.WriteString("<script>var x = 1;</script>")
	b.WriteString("<script>AF_initDataCallback({hash: '1', data:[]});</script>")
	b.WriteString("<script nonce=\"abc\">" + callbackScript(t, "ds:1", []any{"decoy"}) + "</script>")
	b.WriteString("<script nonce=\"abc\">" + callbackScript(t, "ds:0", payload) + "</script>")
	b.WriteString("</head><body></body></html>")
	return []byte(b.String())
}

func normalise(t *testing.T, v any) any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
