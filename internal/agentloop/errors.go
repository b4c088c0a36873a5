package agentloop

import (
	"errors"
	"fmt"
)

// ErrSelection is returned by select_memories when the recall cache has
// nothing staged — spec.md §4.7's "must observe a non-empty cache (else a
// SelectionError)".
var ErrSelection = errors.New("selection error")

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%q parameter is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%q parameter must be a string", key)
	}
	return s, nil
}

func int64SliceArg(args map[string]any, key string) ([]int64, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%q parameter is required", key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%q parameter must be an array", key)
	}
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		switch n := item.(type) {
		case float64:
			out = append(out, int64(n))
		case int64:
			out = append(out, n)
		case int:
			out = append(out, int64(n))
		default:
			return nil, fmt.Errorf("%q parameter must contain only numbers", key)
		}
	}
	return out, nil
}
