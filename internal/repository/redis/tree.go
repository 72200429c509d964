package redis

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
)

// flatten splits value into leaf paths under base. Objects become one leaf per scalar or array,
// empty objects and nil produce no leaves.
func flatten(base string, value any) (map[string]json.RawMessage, error) {
	leaves := make(map[string]json.RawMessage)
	if value == nil {
		return leaves, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}

	if err := walk(base, tree, leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func walk(path string, node any, leaves map[string]json.RawMessage) error {
	switch v := node.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range v {
			if err := walk(entity.JoinPath(path, k), child, leaves); err != nil {
				return err
			}
		}
		return nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		leaves[path] = raw
		return nil
	}
}

// assemble rebuilds the JSON value at base from leaves keyed by full path
func assemble(base string, leaves map[string]json.RawMessage) (json.RawMessage, error) {
	if raw, ok := leaves[base]; ok {
		return raw, nil
	}

	root := map[string]any{}
	baseSegs := len(entity.SplitPath(base))
	for path, raw := range leaves {
		segs := entity.SplitPath(path)
		if len(segs) <= baseSegs || !entity.PathsOverlap(base, path) {
			continue
		}
		setLeaf(root, segs[baseSegs:], raw)
	}
	if len(root) == 0 {
		return nil, nil
	}
	return json.Marshal(root)
}

func setLeaf(node map[string]any, segs []string, raw json.RawMessage) {
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = raw
}

// ancestors lists the proper ancestors of path, nearest last
func ancestors(path string) []string {
	segs := entity.SplitPath(path)
	out := make([]string, 0, len(segs))
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
