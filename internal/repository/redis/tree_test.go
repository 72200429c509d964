package redis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	leaves, err := flatten("rooms/r1", map[string]any{
		"name":  "team",
		"count": 3,
		"participants": map[string]any{
			"alice": map[string]any{"role": "admin"},
		},
		"tags":  []string{"a", "b"},
		"empty": map[string]any{},
		"gone":  nil,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]json.RawMessage{
		"rooms/r1/name":                    json.RawMessage(`"team"`),
		"rooms/r1/count":                   json.RawMessage(`3`),
		"rooms/r1/participants/alice/role": json.RawMessage(`"admin"`),
		"rooms/r1/tags":                    json.RawMessage(`["a","b"]`),
	}, leaves)
}

func TestFlatten_ScalarAndNil(t *testing.T) {
	leaves, err := flatten("rooms/r1/messageCount", int64(7))
	require.NoError(t, err)
	assert.Equal(t, map[string]json.RawMessage{"rooms/r1/messageCount": json.RawMessage(`7`)}, leaves)

	leaves, err = flatten("rooms/r1", nil)
	require.NoError(t, err)
	assert.Empty(t, leaves)
}

func TestAssemble(t *testing.T) {
	leaves := map[string]json.RawMessage{
		"rooms/r1/name":                    json.RawMessage(`"team"`),
		"rooms/r1/participants/alice/role": json.RawMessage(`"admin"`),
		"rooms/r10/name":                   json.RawMessage(`"other"`),
	}

	raw, err := assemble("rooms/r1", leaves)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"team","participants":{"alice":{"role":"admin"}}}`, string(raw))

	raw, err = assemble("rooms/r1/name", leaves)
	require.NoError(t, err)
	assert.JSONEq(t, `"team"`, string(raw))

	raw, err = assemble("rooms/r2", leaves)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{"a", "a/b"}, ancestors("a/b/c"))
	assert.Empty(t, ancestors("a"))
	assert.Empty(t, ancestors(""))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `room\*1\?\[x\]`, escapeGlob("room*1?[x]"))
	assert.Equal(t, "plain/path", escapeGlob("plain/path"))
}
