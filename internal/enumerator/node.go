package enumerator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// node is an order-preserving parse of one JSON value. encoding/json's
// normal Unmarshal-into-map loses key order; the classifier below needs it
// (spec §4.2: "key order as given"), so node decodes through a
// json.Decoder token stream instead of through map[string]any.
type node struct {
	isObject bool
	keys     []string
	fields   map[string]*node
	raw      json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler by walking data's token stream
// once, recording object keys in document order.
func (n *node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("enumerator: read token: %w", err)
	}

	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		n.raw = append(json.RawMessage(nil), data...)
		return nil
	}

	n.isObject = true
	n.fields = make(map[string]*node)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("enumerator: read key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("enumerator: object key is not a string")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("enumerator: read value for %q: %w", key, err)
		}
		child := &node{}
		if err := child.UnmarshalJSON(raw); err != nil {
			return err
		}

		n.keys = append(n.keys, key)
		n.fields[key] = child
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return fmt.Errorf("enumerator: read closing brace: %w", err)
	}
	return nil
}

// stringValue returns the decoded string content of n, or ok=false if n is
// nil or not a JSON string.
func stringValue(n *node) (string, bool) {
	if n == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(n.raw, &s); err != nil {
		return "", false
	}
	return s, true
}
