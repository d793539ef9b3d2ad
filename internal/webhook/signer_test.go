package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_MatchesVector(t *testing.T) {
	body := []byte(`{"a":1,"b":"x"}`)
	got := Sign("s3cr3t", 1700000000, body)
	assert.Equal(t, "sha256=9072467d5ceb5bc0d98398aa6d471a054a25d75b0f65cf3583ed9f06038ec509", got)
}

func TestCanonicalJSON_SortsKeysRegardlessOfInputOrder(t *testing.T) {
	a := map[string]any{"b": "x", "a": 1}
	b := map[string]any{"a": 1, "b": "x"}

	encodedA, err := CanonicalJSON(a)
	require.NoError(t, err)
	encodedB, err := CanonicalJSON(b)
	require.NoError(t, err)

	assert.Equal(t, `{"a":1,"b":"x"}`, string(encodedA))
	assert.Equal(t, encodedA, encodedB)
}

func TestCanonicalJSON_NestedObjectsAndArrays(t *testing.T) {
	payload := map[string]any{
		"z": []any{map[string]any{"y": 2, "x": 1}, 3},
		"a": "first",
	}
	encoded, err := CanonicalJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"first","z":[{"x":1,"y":2},3]}`, string(encoded))
}
