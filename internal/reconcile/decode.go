package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"fleetmon/internal/model"
)

// ErrUnrecognizedShape marks a structurally valid JSON payload that matches
// none of the accepted push shapes.
var ErrUnrecognizedShape = errors.New("unrecognized push payload shape")

// DecodePushPayload normalizes the historically-evolved push wire shapes into
// a flat list of per-entity updates. Accepted shapes: a single flat object, an
// array of flat objects, and either of those under a {"data": ...} wrapper.
// All shape detection lives here so the merge logic never inspects raw JSON.
func DecodePushPayload(raw []byte) ([]model.PushUpdate, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnrecognizedShape)
	}

	switch trimmed[0] {
	case '[':
		return decodeArray(trimmed)
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, fmt.Errorf("malformed push payload: %w", err)
		}
		if data, ok := probe["data"]; ok {
			return decodeWrapped(data)
		}
		return decodeObject(trimmed)
	default:
		return nil, fmt.Errorf("%w: top-level %q", ErrUnrecognizedShape, trimmed[0])
	}
}

func decodeWrapped(data json.RawMessage) ([]model.PushUpdate, error) {
	inner := bytes.TrimSpace(data)
	if len(inner) == 0 {
		return nil, fmt.Errorf("%w: empty data wrapper", ErrUnrecognizedShape)
	}
	switch inner[0] {
	case '[':
		return decodeArray(inner)
	case '{':
		return decodeObject(inner)
	default:
		return nil, fmt.Errorf("%w: data wrapper holds %q", ErrUnrecognizedShape, inner[0])
	}
}

func decodeObject(raw []byte) ([]model.PushUpdate, error) {
	var u model.PushUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("malformed push payload: %w", err)
	}
	return []model.PushUpdate{u}, nil
}

func decodeArray(raw []byte) ([]model.PushUpdate, error) {
	var us []model.PushUpdate
	if err := json.Unmarshal(raw, &us); err != nil {
		return nil, fmt.Errorf("malformed push payload: %w", err)
	}
	return us, nil
}
