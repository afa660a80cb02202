package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"milkwatch/internal/normalize"
)

// ParsePayload accepts the two wire formats the sensors speak: a bare
// numeric string in grams, or a JSON object with device_id/weight and
// optional message_id/timestamp.
func ParsePayload(data []byte) (*normalize.Fields, error) {
	trim := strings.TrimSpace(string(data))
	if trim == "" {
		return nil, errors.New("empty payload")
	}
	if looksLikeJSON(trim) {
		return parseJSON([]byte(trim))
	}
	// Bare numeric payload: grams for the default device.
	return &normalize.Fields{Weight: trim, Raw: trim}, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parseJSON(data []byte) (*normalize.Fields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap tolerates the field-name drift between firmware revisions.
func ParseJSONMap(obj map[string]interface{}) *normalize.Fields {
	flat := make(map[string]string, len(obj))
	for key, val := range obj {
		flat[strings.ToLower(key)] = fmt.Sprint(val)
	}
	return &normalize.Fields{
		DeviceID:  firstNonEmpty(flat, "device_id", "device", "deviceid", "container_id"),
		Weight:    firstNonEmpty(flat, "weight", "weight_grams", "weight_g", "grams"),
		Timestamp: firstNonEmpty(flat, "timestamp", "time", "ts"),
		MessageID: firstNonEmpty(flat, "message_id", "msg_id", "mid"),
	}
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" && v != "<nil>" {
			return v
		}
	}
	return ""
}
