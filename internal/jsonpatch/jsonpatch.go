// Package jsonpatch computes and applies RFC 6902 JSON Patch documents.
// No JSON-Patch library appears anywhere in the retrieved reference
// corpus, so this is a small, purpose-built implementation: it only
// supports the operations the orchestrator actually needs to describe a
// projection delta (add, remove, replace) and works over the generic
// map[string]interface{}/[]interface{} tree produced by
// encoding/json.Unmarshal rather than over typed Go structs.
package jsonpatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Op is one RFC 6902 patch operation.
type Op struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// Diff computes the ordered list of operations that transform before into
// after. Both arguments are marshaled to JSON and compared as generic
// trees, so any JSON-tagged Go value can be diffed directly.
func Diff(before, after interface{}) ([]Op, error) {
	b, err := toTree(before)
	if err != nil {
		return nil, fmt.Errorf("jsonpatch: marshaling before value: %w", err)
	}
	a, err := toTree(after)
	if err != nil {
		return nil, fmt.Errorf("jsonpatch: marshaling after value: %w", err)
	}

	var ops []Op
	diffValue("", b, a, &ops)
	return ops, nil
}

// ToTree marshals v to JSON and back into a generic tree
// (map[string]interface{} / []interface{} / scalars), the representation
// Diff and Apply operate on. Callers that need to retain a "last sent"
// snapshot for repeated diffing should store the tree, not the typed
// value, so that subsequent Diff calls compare like with like.
func ToTree(v interface{}) (interface{}, error) {
	return toTree(v)
}

func toTree(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func diffValue(path string, before, after interface{}, ops *[]Op) {
	bm, bIsMap := before.(map[string]interface{})
	am, aIsMap := after.(map[string]interface{})
	if bIsMap && aIsMap {
		diffObject(path, bm, am, ops)
		return
	}

	ba, bIsArr := before.([]interface{})
	aa, aIsArr := after.([]interface{})
	if bIsArr && aIsArr {
		diffArray(path, ba, aa, ops)
		return
	}

	if !jsonEqual(before, after) {
		*ops = append(*ops, Op{Op: "replace", Path: path, Value: after})
	}
}

func diffObject(path string, before, after map[string]interface{}, ops *[]Op) {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		childPath := path + "/" + escapeToken(k)
		bv, bOk := before[k]
		av, aOk := after[k]

		switch {
		case bOk && !aOk:
			*ops = append(*ops, Op{Op: "remove", Path: childPath})
		case !bOk && aOk:
			*ops = append(*ops, Op{Op: "add", Path: childPath, Value: av})
		default:
			diffValue(childPath, bv, av, ops)
		}
	}
}

// diffArray treats arrays positionally: index-by-index replace for the
// overlapping prefix, then trailing adds or removes. This is sufficient
// for the server's projections, whose only variable-length arrays (hands,
// logs) are append/remove-at-index, not arbitrary reorderings.
func diffArray(path string, before, after []interface{}, ops *[]Op) {
	minLen := len(before)
	if len(after) < minLen {
		minLen = len(after)
	}

	for i := 0; i < minLen; i++ {
		diffValue(fmt.Sprintf("%s/%d", path, i), before[i], after[i], ops)
	}

	switch {
	case len(after) > len(before):
		for i := len(before); i < len(after); i++ {
			*ops = append(*ops, Op{Op: "add", Path: fmt.Sprintf("%s/-", path), Value: after[i]})
		}
	case len(before) > len(after):
		for i := len(before) - 1; i >= len(after); i-- {
			*ops = append(*ops, Op{Op: "remove", Path: fmt.Sprintf("%s/%d", path, i)})
		}
	}
}

func jsonEqual(a, b interface{}) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}

func escapeToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	return token
}

func unescapeToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	token = strings.ReplaceAll(token, "~0", "~")
	return token
}

// Apply applies ops to doc (a generic JSON tree, as produced by
// json.Unmarshal into interface{}) and returns the resulting tree. Used by
// tests to verify diff correctness: Apply(before, Diff(before, after))
// must equal after.
func Apply(doc interface{}, ops []Op) (interface{}, error) {
	for _, op := range ops {
		var err error
		doc, err = applyOne(doc, op)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func applyOne(doc interface{}, op Op) (interface{}, error) {
	segments := splitPath(op.Path)
	if len(segments) == 0 {
		switch op.Op {
		case "replace", "add":
			return op.Value, nil
		default:
			return nil, fmt.Errorf("jsonpatch: cannot %s root document", op.Op)
		}
	}
	return applyAt(doc, segments, op)
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	raw := strings.Split(strings.TrimPrefix(path, "/"), "/")
	segments := make([]string, len(raw))
	for i, s := range raw {
		segments[i] = unescapeToken(s)
	}
	return segments
}

func applyAt(node interface{}, segments []string, op Op) (interface{}, error) {
	head, rest := segments[0], segments[1:]

	switch n := node.(type) {
	case map[string]interface{}:
		if len(rest) == 0 {
			switch op.Op {
			case "add", "replace":
				n[head] = op.Value
			case "remove":
				delete(n, head)
			default:
				return nil, fmt.Errorf("jsonpatch: unsupported op %q", op.Op)
			}
			return n, nil
		}
		child, ok := n[head]
		if !ok {
			return nil, fmt.Errorf("jsonpatch: path %q not found", op.Path)
		}
		updated, err := applyAt(child, rest, op)
		if err != nil {
			return nil, err
		}
		n[head] = updated
		return n, nil

	case []interface{}:
		if head == "-" {
			if len(rest) != 0 {
				return nil, fmt.Errorf("jsonpatch: cannot index past array append token")
			}
			if op.Op != "add" {
				return nil, fmt.Errorf("jsonpatch: unsupported op %q at append token", op.Op)
			}
			return append(n, op.Value), nil
		}
		idx, err := strconv.Atoi(head)
		if err != nil {
			return nil, fmt.Errorf("jsonpatch: invalid array index %q", head)
		}
		if len(rest) == 0 {
			switch op.Op {
			case "replace":
				if idx < 0 || idx >= len(n) {
					return nil, fmt.Errorf("jsonpatch: index %d out of range", idx)
				}
				n[idx] = op.Value
				return n, nil
			case "add":
				if idx < 0 || idx > len(n) {
					return nil, fmt.Errorf("jsonpatch: index %d out of range", idx)
				}
				n = append(n, nil)
				copy(n[idx+1:], n[idx:])
				n[idx] = op.Value
				return n, nil
			case "remove":
				if idx < 0 || idx >= len(n) {
					return nil, fmt.Errorf("jsonpatch: index %d out of range", idx)
				}
				return append(n[:idx], n[idx+1:]...), nil
			default:
				return nil, fmt.Errorf("jsonpatch: unsupported op %q", op.Op)
			}
		}
		if idx < 0 || idx >= len(n) {
			return nil, fmt.Errorf("jsonpatch: index %d out of range", idx)
		}
		updated, err := applyAt(n[idx], rest, op)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil

	default:
		return nil, fmt.Errorf("jsonpatch: cannot descend into scalar at %q", op.Path)
	}
}
