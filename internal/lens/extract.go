package lens

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

const (
	callbackPrefix = "AF_initDataCallback("
	payloadKey     = "0"
)

var (
	// dataKeyPattern finds the data store key a callback registers, e.g. key: 'ds:0'
	dataKeyPattern = regexp.MustCompile(`key:\s*'ds:(\d+)'`)

	// headerPattern matches the unquoted header of the callback argument
	headerPattern = regexp.MustCompile(`^\{\s*key:\s*'(ds:\d+)'\s*,\s*hash:\s*'(\d+)'\s*,\s*data:`)
)

// ExtractPayload finds the ds:0 data callback in a results page and returns the
// payload tree stored at data[1].
func ExtractPayload(page []byte) (Node, error) {
	script, err := findCallbackScript(page)
	if err != nil {
		return Node{}, err
	}

	root, err := RepairCallbackScript(script)
	if err != nil {
		return Node{}, err
	}

	data, ok := root.Key("data")
	if !ok {
		return Node{}, &ExtractionError{Reason: "callback has no data field"}
	}
	payload, ok := data.Index(1)
	if !ok {
		return Node{}, &ExtractionError{Reason: "callback data has no element at index 1"}
	}
	return payload, nil
}

// findCallbackScript returns the text of the first script that registers the ds:0 callback
func findCallbackScript(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", &ExtractionError{Reason: "failed to parse results page", Cause: err}
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, callbackPrefix) {
			return true
		}
		m := dataKeyPattern.FindStringSubmatch(text)
		if m == nil || m[1] != payloadKey {
			return true
		}
		script = text
		return false
	})

	if script == "" {
		return "", &ExtractionError{Reason: fmt.Sprintf("no script registers data key ds:%s", payloadKey)}
	}
	return script, nil
}

// RepairCallbackScript turns the text of an AF_initDataCallback(...) script into a
// parsed tree. The callback argument is a JavaScript object literal with unquoted
// keys and single-quoted header values, so it is rewritten into JSON first.
func RepairCallbackScript(script string) (Node, error) {
	text := strings.TrimSpace(script)

	start := strings.Index(text, callbackPrefix)
	if start < 0 {
		return Node{}, &ExtractionError{Reason: "callback wrapper not found"}
	}
	text = strings.TrimSpace(text[start+len(callbackPrefix):])
	text = strings.TrimSuffix(text, ";")
	text = strings.TrimSpace(text)
	if !strings.HasSuffix(text, ")") {
		return Node{}, &ExtractionError{Reason: "callback wrapper is not closed"}
	}
	text = strings.TrimSpace(strings.TrimSuffix(text, ")"))

	loc := headerPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return Node{}, &ExtractionError{Reason: "key/hash markers not found"}
	}
	key := text[loc[2]:loc[3]]
	hash := text[loc[4]:loc[5]]
	text = fmt.Sprintf(`{"key":%q,"hash":%q,"data":`, key, hash) + text[loc[1]:]

	// sideChannel trails the data array, so only its last occurrence is the key
	if i := strings.LastIndex(text, "sideChannel:"); i >= 0 {
		text = text[:i] + `"sideChannel":` + text[i+len("sideChannel:"):]
	}

	if !gjson.Valid(text) {
		return Node{}, &ExtractionError{Reason: "repaired callback is not valid JSON"}
	}
	return ParseNode(text), nil
}
