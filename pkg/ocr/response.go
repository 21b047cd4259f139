package ocr

import (
	"encoding/json"
	"strconv"
	"strings"
)

// jobIDKeys are the alternative identifier fields the service has been seen
// to use, checked in priority order.
var jobIDKeys = []string{"ocrId", "id", "job_id", "ocr_id"}

// messageKeys are the alternative message-carrying fields, checked in
// priority order.
var messageKeys = []string{"message", "detail", "error"}

// UploadResponse wraps the raw upload response object. The service's shape
// varies, so callers interrogate it through accessors instead of struct
// fields.
type UploadResponse struct {
	Raw map[string]any
}

// JobID returns the extraction job identifier under whichever field the
// service used, or "" if none is present.
func (r *UploadResponse) JobID() string {
	for _, key := range jobIDKeys {
		if id := scalarString(r.Raw[key]); id != "" {
			return id
		}
	}
	return ""
}

// Succeeded reports whether the upload was accepted: an explicit success
// indicator or any job identifier counts.
func (r *UploadResponse) Succeeded() bool {
	if status, _ := r.Raw["status"].(string); status == "success" {
		return true
	}
	return r.JobID() != ""
}

// Message returns the service-provided message coerced to text, or "".
func (r *UploadResponse) Message() string {
	return ExtractMessage(r.Raw)
}

// ExtractMessage pulls a human-readable message out of a loosely-shaped
// response object. Structured messages are flattened rather than dropped.
func ExtractMessage(raw map[string]any) string {
	for _, key := range messageKeys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if msg := coerceMessage(v); msg != "" {
			return msg
		}
	}
	return ""
}

func coerceMessage(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case []any:
		// Validation-style detail lists: join the msg of each entry.
		parts := make([]string, 0, len(m))
		for _, entry := range m {
			if obj, ok := entry.(map[string]any); ok {
				if msg, ok := obj["msg"].(string); ok {
					parts = append(parts, msg)
					continue
				}
			}
			parts = append(parts, coerceMessage(entry))
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// scalarString renders a scalar identifier as a string. Numeric identifiers
// are accepted; structured values are not.
func scalarString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}
