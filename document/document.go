// Package document reads and writes the semi-structured payloads stored in
// text columns. Payloads are UTF-8 JSON; numbers keep their textual form.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrUnexpectedShape = errors.New("document has an unexpected shape")
)

// Parse decodes text into maps, slices and scalars. Empty text and the JSON
// null decode to nil. Text that is not valid UTF-8 is rejected.
func Parse(text string) (interface{}, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidDocument)
	}

	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrInvalidDocument)
	}
	return value, nil
}

// FromColumn parses a column value as read from a store: NULL, text or bytes.
func FromColumn(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return Parse(v)
	case []byte:
		return Parse(string(v))
	default:
		return nil, fmt.Errorf("%w: column holds %T", ErrInvalidDocument, value)
	}
}

// Serialize encodes value as compact JSON. Map keys come out sorted, so equal
// documents always serialize to the same text.
func Serialize(value interface{}) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(value); err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ---

func Object(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrUnexpectedShape, value)
	}
}

func Array(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: expected an array, got %T", ErrUnexpectedShape, value)
	}
}

// Clone deep-copies maps and slices. Scalars are shared.
func Clone(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = Clone(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	default:
		return value
	}
}

// ---

// Lookup reads the value at a dotted path straight from the text. Numbers
// come back as float64.
func Lookup(text, path string) (interface{}, bool) {
	result := gjson.Get(text, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// LookupString reads a string at a dotted path.
func LookupString(text, path string) (string, bool) {
	result := gjson.Get(text, path)
	if !result.Exists() || result.Type != gjson.String {
		return "", false
	}
	return result.Str, true
}

// Set writes value at a dotted path, creating intermediate objects.
func Set(text, path string, value interface{}) (string, error) {
	if strings.TrimSpace(text) == "" {
		text = "{}"
	}
	if !valid(text) {
		return "", fmt.Errorf("%w: cannot set %s", ErrInvalidDocument, path)
	}

	out, err := sjson.Set(text, path, value)
	if err != nil {
		return "", fmt.Errorf("failed to set %s: %w", path, err)
	}
	return out, nil
}

// Delete removes the value at a dotted path. A missing path is not an error.
func Delete(text, path string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	if !valid(text) {
		return "", fmt.Errorf("%w: cannot delete %s", ErrInvalidDocument, path)
	}

	out, err := sjson.Delete(text, path)
	if err != nil {
		return "", fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return out, nil
}

func valid(text string) bool {
	return utf8.ValidString(text) && gjson.Valid(text)
}

// PathKey escapes an object key for use as one component of a path.
func PathKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
