package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/cv-tailor/internal/types"
)

// Edit assigns Value to the field addressed by Path, a dotted path with
// numeric segments for list indexes (work_experience.0.bullets.2). A JSON null
// value deletes the field or removes the list element. An index equal to the
// list length appends.
type Edit struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// SectionPatch replaces one top-level section as a whole.
type SectionPatch struct {
	Section string          `json:"section"`
	Data    json.RawMessage `json:"data"`
}

// photoField is the only top-level key that is editable but not a section.
const photoField = "photo"

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// SplitPath normalizes "a[0].b" to segments ["a", "0", "b"].
func SplitPath(path string) []string {
	path = bracketIndex.ReplaceAllString(strings.TrimSpace(path), ".$1")
	path = strings.Trim(path, ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// ApplyEdits returns cv with edits applied, leaving cv untouched. It fails
// exactly where a flush of the same edits would, without writing anything.
func ApplyEdits(cv *types.CV, edits []Edit) (*types.CV, error) {
	return applyEdits(cv, edits, nil)
}

// applyEdits applies edits in order to a CV and returns the new CV. The input
// is not modified.
func applyEdits(cv *types.CV, edits []Edit, patch *SectionPatch) (*types.CV, error) {
	doc, err := toDocument(cv)
	if err != nil {
		return nil, err
	}

	if patch != nil {
		if !types.IsSection(patch.Section) {
			return nil, &EditError{Path: patch.Section, Message: "unknown section"}
		}
		v, err := decodeValue(patch.Data)
		if err != nil {
			return nil, &EditError{Path: patch.Section, Message: "section data is not valid JSON", Cause: err}
		}
		if v == nil {
			delete(doc, patch.Section)
		} else {
			doc[patch.Section] = v
		}
	}

	for _, e := range edits {
		segs := SplitPath(e.Path)
		if len(segs) == 0 {
			return nil, &EditError{Path: e.Path, Message: "empty path"}
		}
		if !types.IsSection(segs[0]) && segs[0] != photoField {
			return nil, &EditError{Path: e.Path, Message: fmt.Sprintf("unknown section %q", segs[0])}
		}
		v, err := decodeValue(e.Value)
		if err != nil {
			return nil, &EditError{Path: e.Path, Message: "value is not valid JSON", Cause: err}
		}
		updated, err := assign(doc, segs, v, e.Path)
		if err != nil {
			return nil, err
		}
		doc = updated.(map[string]any)
	}

	return fromDocument(doc)
}

// assign sets segs within node to v, returning the (possibly reallocated) node.
func assign(node any, segs []string, v any, path string) (any, error) {
	seg := segs[0]
	last := len(segs) == 1

	switch n := node.(type) {
	case map[string]any:
		if last {
			if v == nil {
				delete(n, seg)
			} else {
				n[seg] = v
			}
			return n, nil
		}
		child, ok := n[seg]
		if !ok || child == nil {
			if isIndex(segs[1]) {
				child = []any{}
			} else {
				child = map[string]any{}
			}
		}
		updated, err := assign(child, segs[1:], v, path)
		if err != nil {
			return nil, err
		}
		n[seg] = updated
		return n, nil

	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 {
			return nil, &EditError{Path: path, Message: fmt.Sprintf("segment %q is not a list index", seg)}
		}
		if idx > len(n) {
			return nil, &EditError{Path: path, Message: fmt.Sprintf("index %d out of range (length %d)", idx, len(n))}
		}
		if last {
			switch {
			case v == nil && idx < len(n):
				return append(n[:idx], n[idx+1:]...), nil
			case v == nil:
				return nil, &EditError{Path: path, Message: fmt.Sprintf("index %d out of range (length %d)", idx, len(n))}
			case idx == len(n):
				return append(n, v), nil
			default:
				n[idx] = v
				return n, nil
			}
		}
		var child any
		if idx == len(n) {
			child = map[string]any{}
			n = append(n, child)
		} else {
			child = n[idx]
		}
		updated, err := assign(child, segs[1:], v, path)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil

	default:
		return nil, &EditError{Path: path, Message: fmt.Sprintf("cannot descend into scalar at %q", seg)}
	}
}

func isIndex(seg string) bool {
	_, err := strconv.Atoi(seg)
	return err == nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func toDocument(cv *types.CV) (map[string]any, error) {
	if cv == nil {
		cv = &types.CV{}
	}
	data, err := json.Marshal(cv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cv: %w", err)
	}
	v, err := decodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cv: %w", err)
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return doc, nil
}

// fromDocument strictly decodes the edited document back into typed records,
// so edits that produce unknown fields or wrong types are rejected.
func fromDocument(doc map[string]any) (*types.CV, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edited cv: %w", err)
	}
	cv, err := types.DecodeCV(data)
	if err != nil {
		return nil, &EditError{Path: "(cv_data)", Message: "edited content does not match the CV schema", Cause: err}
	}
	return cv, nil
}
