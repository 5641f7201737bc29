// Package vecstore provides the single-collection vector store contract,
// the canonical item and filter shapes, and the conversions between the
// canonical shape and what backends natively store.
package vecstore

// Item is a stored vector record. Payload is the free-form attribute
// mapping persisted next to the vector; Memory and OriginalText are the
// canonical projection of well-known payload keys that callers written
// against the canonical shape rely on.
type Item struct {
	ID           string         `json:"id"`
	Vector       []float32      `json:"vector,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Score        float32        `json:"score,omitempty"`
	Memory       string         `json:"memory,omitempty"`
	OriginalText string         `json:"original_text,omitempty"`
}

// Canonicalize projects the well-known payload keys into the canonical
// fields: memory falls back to the preference key, original_text defaults
// to empty. The precedence is part of the contract; callers must see the
// same shape regardless of the backend in use.
func Canonicalize(item Item) Item {
	payload := item.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	memory, ok := payload["memory"].(string)
	if !ok || memory == "" {
		if pref, prefOK := payload["preference"].(string); prefOK {
			memory = pref
		}
	}
	originalText, _ := payload["original_text"].(string)

	item.Memory = memory
	item.OriginalText = originalText
	return item
}

// ForBackend pushes the canonical fields back into the payload so the
// record survives storage in backends that only persist the payload.
// The payload is copied; the input item is not mutated.
func ForBackend(item Item) Item {
	payload := make(map[string]any, len(item.Payload)+2)
	for k, v := range item.Payload {
		payload[k] = v
	}
	if item.Memory != "" {
		payload["memory"] = item.Memory
	}
	if item.OriginalText != "" {
		payload["original_text"] = item.OriginalText
	}

	item.Payload = payload
	return item
}
