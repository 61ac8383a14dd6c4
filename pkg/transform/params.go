package transform

import "fmt"

// Params are the free-form parameters of a Spec, as decoded from YAML or built in code.
type Params map[string]any

// Int returns the integer at key, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("param %q: want integer, got %T", key, v)
	}
	return n, nil
}

// Bool returns the boolean at key, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("param %q: want bool, got %T", key, v)
	}
	return b, nil
}

// Strings returns the string list at key, or def when absent.
func (p Params) Strings(key string, def []string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("param %q: want string items, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("param %q: want string list, got %T", key, v)
}

// Ints returns the integer list at key, or def when absent.
func (p Params) Ints(key string, def []int) ([]int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch list := v.(type) {
	case []int:
		return list, nil
	case []any:
		out := make([]int, 0, len(list))
		for _, item := range list {
			n, ok := toInt(item)
			if !ok {
				return nil, fmt.Errorf("param %q: want integer items, got %T", key, item)
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("param %q: want integer list, got %T", key, v)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
