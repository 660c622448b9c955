// services/internal/util/util.go
package util

import (
	"encoding/json"
)

// DecodeJSON fills dst from a bus payload. Typed payloads published in
// process are copied directly; anything else goes through JSON.
func DecodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case T:
		*dst = v
		return nil
	case *T:
		if v != nil {
			*dst = *v
			return nil
		}
		return json.Unmarshal([]byte("null"), dst)
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

// TopicString returns a string topic token, or "" for other token types.
func TopicString(tok any) string {
	s, _ := tok.(string)
	return s
}
