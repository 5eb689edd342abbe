package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

// Transform is a field operator resolved against the stored value at write
// time, inside the same atomic section as the rest of the write.
type Transform interface {
	apply(current any) any
}

type incrementTransform struct {
	by float64
}

// Increment adds n to a numeric field. Missing or non-numeric fields start at zero.
func Increment(n float64) Transform {
	return incrementTransform{by: n}
}

func (t incrementTransform) apply(current any) any {
	if n, ok := current.(float64); ok {
		return n + t.by
	}
	return t.by
}

type arrayUnionTransform struct {
	values []any
}

// ArrayUnion appends each value not already present in an array field.
func ArrayUnion(values ...any) Transform {
	return arrayUnionTransform{values: values}
}

func (t arrayUnionTransform) apply(current any) any {
	existing, _ := current.([]any)
	out := append([]any{}, existing...)
	for _, raw := range t.values {
		v, err := normalizeValue(raw)
		if err != nil {
			continue
		}
		found := false
		for _, have := range out {
			if reflect.DeepEqual(have, v) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

// normalizeFields turns caller data into JSON-shaped values, leaving
// transforms in place for apply.
func normalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		n, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case Transform:
		return val, nil
	case time.Time:
		return instant.Format(val), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return instant.Format(*val), nil
	case map[string]any:
		return normalizeFields(val)
	case string, bool, float64:
		return val, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeInto deep-merges src into dst, resolving transforms against dst.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		switch val := v.(type) {
		case Transform:
			dst[k] = val.apply(dst[k])
		case map[string]any:
			child, ok := dst[k].(map[string]any)
			if !ok {
				child = map[string]any{}
			}
			mergeInto(child, val)
			dst[k] = child
		default:
			dst[k] = val
		}
	}
}

// applyUpdate writes each dotted path in fields into doc, creating
// intermediate maps as needed. Map values replace what was there.
func applyUpdate(doc map[string]any, fields map[string]any) {
	for path, v := range fields {
		parts := strings.Split(path, ".")
		cur := doc
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
		last := parts[len(parts)-1]
		switch val := v.(type) {
		case Transform:
			cur[last] = val.apply(cur[last])
		case map[string]any:
			fresh := map[string]any{}
			mergeInto(fresh, val)
			cur[last] = fresh
		default:
			cur[last] = val
		}
	}
}

func validateUpdatePaths(fields map[string]any) error {
	for path := range fields {
		if !fieldPathRe.MatchString(path) {
			return fmt.Errorf("docstore: invalid field path %q", path)
		}
	}
	return nil
}

func lookupPath(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = cloneValue(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return val
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return cloneValue(m).(map[string]any)
}
