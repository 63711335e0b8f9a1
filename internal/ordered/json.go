package ordered

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeJSON decodes a single JSON value. Objects become *Map with the
// encoded key order, numbers become json.Number.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSON(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ordered: trailing data after JSON value")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch d {
	case '{':
		out := New()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("ordered: object key must be string, got %T", keyTok)
			}
			val, err := decodeJSON(dec)
			if err != nil {
				return nil, err
			}
			out.Set(key, val)
		}
		if _, err := dec.Token(); err != nil { // '}'
			return nil, err
		}
		return out, nil
	case '[':
		out := make([]any, 0)
		for dec.More() {
			val, err := decodeJSON(dec)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		if _, err := dec.Token(); err != nil { // ']'
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("ordered: unexpected delimiter %q", d)
	}
}
