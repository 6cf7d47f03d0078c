package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Argument errors. Tools wrap them with the argument name.
var (
	ErrMissingRequiredArg = errors.New("missing required argument")
	ErrInvalidArgType     = errors.New("invalid argument type")
)

// StringArg returns a trimmed string argument, or "" when absent.
func StringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgType, name)
	}
	return strings.TrimSpace(s), nil
}

// IntArg returns an integer argument, or def when absent. Models send numbers
// as float64, json.Number or numeric strings.
func IntArg(args map[string]any, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float32:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return def, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgType, name)
		}
		return int(i), nil
	case string:
		if strings.TrimSpace(n) == "" {
			return def, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return def, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgType, name)
		}
		return i, nil
	}
	return def, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgType, name)
}
