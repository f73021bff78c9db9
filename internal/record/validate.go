package record

import (
	"bytes"
	"encoding/json"
)

// Validate reports whether a record is structurally sound enough to store
// and replay. Invalid records are dropped from batches, never repaired.
//
// Full snapshots additionally require a serialized node tree: a snapshot
// without one can never anchor reconstruction.
func (r Record) Validate() bool {
	switch r.Type {
	case TypeFullSnapshot:
		return hasNodeTree(r.Data)
	case TypeIncremental, TypeMeta, TypeCustom:
		return len(r.Data) > 0 && !bytes.Equal(r.Data, []byte("null"))
	default:
		return false
	}
}

// FilterValid returns the records that pass Validate, preserving order.
// The second result counts how many were dropped.
func FilterValid(records []Record) ([]Record, int) {
	valid := records[:0:0]
	dropped := 0
	for _, rec := range records {
		if rec.Validate() {
			valid = append(valid, rec)
		} else {
			dropped++
		}
	}
	return valid, dropped
}

// hasNodeTree accepts either the canonical {node: {...}} payload or a
// payload that is itself a serialized node with childNodes. Older capture
// engines emitted the latter.
func hasNodeTree(data json.RawMessage) bool {
	if len(data) == 0 {
		return false
	}
	var probe struct {
		Node       json.RawMessage `json:"node"`
		ChildNodes json.RawMessage `json:"childNodes"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	if len(probe.Node) > 0 && !bytes.Equal(probe.Node, []byte("null")) {
		return true
	}
	return len(probe.ChildNodes) > 0 && !bytes.Equal(probe.ChildNodes, []byte("null"))
}
