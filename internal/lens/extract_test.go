package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayload_SelectsDataKeyZero(t *testing.T) {
	payload := buildPayload(nil, similarEntry("Cat", 0.9, "https://example.com/cat", "example.com"))

	node, err := ExtractPayload(resultsPage(t, payload))
	require.NoError(t, err)
	assert.Equal(t, KindArray, node.Kind())
	assert.Equal(t, normalise(t, payload), node.Value())
}

func TestExtractPayload_RoundTrip(t *testing.T) {
	payload := []any{"a", 1.5, true, nil, map[string]any{"k": []any{"v", 2.0}}, []any{[]any{}}}

	node, err := ExtractPayload(resultsPage(t, payload))
	require.NoError(t, err)

	assert.Equal(t, normalise(t, payload), normalise(t, node.Value()))
}

func TestExtractPayload_NoMatchingScript(t *testing.T) {
	page := []byte("<html><script>" + callbackScript(t, "ds:3", []any{}) + "</script></html>")

	_, err := ExtractPayload(page)
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
	assert.Contains(t, err.Error(), "ds:0")
}

func TestExtractPayload_MissingDataIndex(t *testing.T) {
	page := []byte("<html><script>AF_initDataCallback({key: 'ds:0', hash: '9', data:[null], sideChannel: {}});</script></html>")

	_, err := ExtractPayload(page)
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
}

func TestRepairCallbackScript(t *testing.T) {
	t.Run("quotes header and side channel keys", func(t *testing.T) {
		node, err := RepairCallbackScript("AF_initDataCallback({key: 'ds:0', hash: '12', data:[1,[\"x\"]], sideChannel: {}});")
		require.NoError(t, err)

		key, ok := node.Key("key")
		require.True(t, ok)
		s, _ := key.Str()
		assert.Equal(t, "ds:0", s)

		hash, ok := node.Key("hash")
		require.True(t, ok)
		s, _ = hash.Str()
		assert.Equal(t, "12", s)

		_, ok = node.Key("sideChannel")
		assert.True(t, ok)
	})

	t.Run("leaves payload contents untouched", func(t *testing.T) {
		script := `AF_initDataCallback({key: 'ds:0', hash: '1', data:["a);b", "sideChannel: x"], sideChannel: {}});`
		node, err := RepairCallbackScript(script)
		require.NoError(t, err)

		data, ok := node.Key("data")
		require.True(t, ok)
		assert.Equal(t, []any{"a);b", "sideChannel: x"}, data.Value())
	})

	t.Run("tolerates surrounding whitespace", func(t *testing.T) {
		_, err := RepairCallbackScript("\n  AF_initDataCallback({ key: 'ds:0', hash: '1', data: [] , sideChannel: {}}) ;\n")
		assert.NoError(t, err)
	})

	failures := []struct {
		name   string
		script string
		reason string
	}{
		{"no wrapper", "console.log(1);", "callback wrapper not found"},
		{"unclosed wrapper", "AF_initDataCallback({key: 'ds:0', hash: '1', data:[]}", "callback wrapper is not closed"},
		{"no header", "AF_initDataCallback({data:[]});", "key/hash markers not found"},
		{"broken payload", "AF_initDataCallback({key: 'ds:0', hash: '1', data:[1,}, sideChannel: {}});", "repaired callback is not valid JSON"},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RepairCallbackScript(tc.script)
			require.Error(t, err)
			var ee *ExtractionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tc.reason, ee.Reason)
		})
	}
}
