package memory

import (
	"bytes"
	"encoding/json"
)

// normalize converts an arbitrary value into the generic JSON tree form
// (map[string]any, []any, json.Number, string, bool, nil).
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if m, ok := out.(map[string]any); ok && len(m) == 0 {
		return nil, nil
	}
	return out, nil
}

// setAt stores value under segs, creating intermediate nodes.
// A nil value deletes the node and prunes ancestors left empty.
func setAt(node map[string]any, segs []string, value any) {
	key := segs[0]
	if len(segs) == 1 {
		if value == nil {
			delete(node, key)
		} else {
			node[key] = value
		}
		return
	}

	child, ok := node[key].(map[string]any)
	if !ok {
		if value == nil {
			return
		}
		child = map[string]any{}
		node[key] = child
	}

	setAt(child, segs[1:], value)
	if len(child) == 0 {
		delete(node, key)
	}
}

// getAt returns the node under segs or nil
func getAt(node map[string]any, segs []string) any {
	var cur any = node
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

func jsonMarshal(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
