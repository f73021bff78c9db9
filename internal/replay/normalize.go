package replay

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"rewind/internal/record"
)

// estimatedStepMS fills in missing timestamps: each such record is
// assumed to follow its predecessor by this much.
const estimatedStepMS = 100

// DecodeLenient turns a stored snapshots payload into records, accepting
// every shape the store has ever returned: a typed array, a JSON string
// (plain or compressed), legacy single-record wrappers, string
// timestamps, and missing timestamps. Records without a numeric type and
// payload data are discarded.
func DecodeLenient(raw json.RawMessage) []record.Record {
	if records, err := record.DecodeRecords(raw); err == nil {
		return repairTimestamps(filterUsable(records))
	}

	elements := rawElements(raw)
	records := make([]record.Record, 0, len(elements))
	for _, element := range elements {
		if rec, ok := decodeElement(element); ok {
			records = append(records, rec)
		}
	}
	return repairTimestamps(filterUsable(records))
}

// Normalize sorts records, re-homes the full snapshot to index 0, and
// enforces minimum playability. The input is not modified.
func Normalize(records []record.Record) ([]record.Record, error) {
	usable := repairTimestamps(filterUsable(records))
	if len(usable) < 2 {
		if !hasFullSnapshot(usable) {
			return nil, ErrNoFullSnapshot
		}
		return nil, ErrTooShort
	}

	sorted := append([]record.Record(nil), usable...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	snapshotIndex := -1
	for i, rec := range sorted {
		if rec.IsFullSnapshot() {
			snapshotIndex = i
			break
		}
	}
	if snapshotIndex < 0 {
		return nil, ErrNoFullSnapshot
	}
	if snapshotIndex > 0 {
		// Defensive against store-level reordering: replay cannot start
		// from an incremental.
		snapshot := sorted[snapshotIndex]
		sorted = append(sorted[:snapshotIndex], sorted[snapshotIndex+1:]...)
		sorted = append([]record.Record{snapshot}, sorted...)
	}
	return sorted, nil
}

func filterUsable(records []record.Record) []record.Record {
	usable := records[:0:0]
	for _, rec := range records {
		switch rec.Type {
		case record.TypeFullSnapshot, record.TypeIncremental, record.TypeMeta, record.TypeCustom:
		default:
			continue
		}
		if len(rec.Data) == 0 || bytes.Equal(rec.Data, []byte("null")) {
			continue
		}
		usable = append(usable, rec)
	}
	return usable
}

func repairTimestamps(records []record.Record) []record.Record {
	out := append([]record.Record(nil), records...)
	for i := range out {
		if out[i].Timestamp > 0 {
			continue
		}
		if i == 0 {
			out[i].Timestamp = estimatedStepMS
			continue
		}
		out[i].Timestamp = out[i-1].Timestamp + estimatedStepMS
	}
	return out
}

func hasFullSnapshot(records []record.Record) bool {
	for _, rec := range records {
		if rec.IsFullSnapshot() {
			return true
		}
	}
	return false
}

// rawElements splits a payload into per-record JSON values without
// committing to a record shape yet.
func rawElements(raw json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil
		}
		return rawElements(json.RawMessage(inner))
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil
	}
	return elements
}

// decodeElement parses one stored element. Old capture versions wrapped
// records as {"type":"snapshot","data":{...}} and emitted string
// timestamps; both are unwrapped here.
func decodeElement(element json.RawMessage) (record.Record, bool) {
	var probe struct {
		Type      json.RawMessage `json:"type"`
		Timestamp json.RawMessage `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(element, &probe); err != nil {
		return record.Record{}, false
	}

	if legacyTag, ok := decodeString(probe.Type); ok {
		if legacyTag == "snapshot" && len(probe.Data) > 0 {
			return decodeElement(probe.Data)
		}
		return record.Record{}, false
	}

	var typ int
	if err := json.Unmarshal(probe.Type, &typ); err != nil {
		return record.Record{}, false
	}

	rec := record.Record{Type: record.Type(typ), Data: probe.Data}
	rec.Timestamp = decodeTimestamp(probe.Timestamp)
	return rec, true
}

func decodeTimestamp(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var numeric float64
	if err := json.Unmarshal(raw, &numeric); err == nil {
		return int64(numeric)
	}
	if text, ok := decodeString(raw); ok {
		if parsed, err := strconv.ParseFloat(text, 64); err == nil {
			return int64(parsed)
		}
	}
	return 0
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
