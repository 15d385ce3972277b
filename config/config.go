// Package config loads service configuration from a JSON file with typed
// key lookup. The file's root must be a JSON object; strings and integers
// are directly typed, everything else is opaque.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"

	"github.com/chmicro/chmicro/core/status"
)

// Config is a loaded configuration document.
type Config struct {
	values map[string]json.RawMessage
}

// LoadFile reads and parses the file. A missing file maps to not_found; a
// parse error (message includes line and column) or a non-object root maps
// to invalid_argument.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, status.New(status.NotFound, "config file not found")
		}
		return nil, status.Errorf(status.Internal, "read %s: %v", path, err)
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			line, col := lineCol(data, syn.Offset)
			return nil, status.Errorf(status.InvalidArgument,
				"invalid json: %v at line %d, col %d", syn, line, col)
		}
		var typ *json.UnmarshalTypeError
		if errors.As(err, &typ) && typ.Field == "" {
			return nil, status.New(status.InvalidArgument, "config root must be a JSON object")
		}
		return nil, status.Errorf(status.InvalidArgument, "invalid json: %v", err)
	}
	if values == nil {
		// A bare null parses without error but is not an object.
		return nil, status.New(status.InvalidArgument, "config root must be a JSON object")
	}

	return &Config{values: values}, nil
}

// Has reports whether the key exists at the root.
func (c *Config) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// GetString returns the string value at key. Missing keys map to not_found,
// non-string values to invalid_argument.
func (c *Config) GetString(key string) (string, error) {
	raw, ok := c.values[key]
	if !ok {
		return "", status.New(status.NotFound, "missing key")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", status.New(status.InvalidArgument, "not a string")
	}
	return s, nil
}

// GetInt returns the integer value at key. Missing keys map to not_found;
// non-numbers and numbers with a fractional part to invalid_argument.
func (c *Config) GetInt(key string) (int, error) {
	raw, ok := c.values[key]
	if !ok {
		return 0, status.New(status.NotFound, "missing key")
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, status.New(status.InvalidArgument, "not an int")
	}
	i, err := n.Int64()
	if err != nil {
		return 0, status.New(status.InvalidArgument, "not an int")
	}
	return int(i), nil
}

// lineCol converts a byte offset into 1-based line and column numbers.
func lineCol(data []byte, offset int64) (line, col int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	head := data[:offset]
	line = bytes.Count(head, []byte("\n")) + 1
	if i := bytes.LastIndexByte(head, '\n'); i >= 0 {
		col = int(offset) - i
	} else {
		col = int(offset) + 1
	}
	return line, col
}
