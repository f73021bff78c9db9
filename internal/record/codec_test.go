package record

import (
	"encoding/json"
	"testing"
)

func sampleBatch() []Record {
	return []Record{
		{Type: TypeFullSnapshot, Timestamp: 100, Data: json.RawMessage(`{"node":{"childNodes":[{"id":1}]}}`)},
		{Type: TypeIncremental, Timestamp: 150, Data: json.RawMessage(`{"source":1,"positions":[{"x":10,"y":20}]}`)},
		{Type: TypeIncremental, Timestamp: 200, Data: json.RawMessage(`{"source":3,"id":5,"y":340}`)},
	}
}

func TestDecodeRecordsRawArray(t *testing.T) {
	encoded, err := EncodeRecords(sampleBatch(), false)
	if err != nil {
		t.Fatalf("EncodeRecords: %v", err)
	}
	if encoded[0] != '[' {
		t.Fatalf("uncompressed batch should be an array: %s", encoded[:1])
	}
	decoded, err := DecodeRecords(encoded)
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(decoded) != 3 || decoded[2].Timestamp != 200 {
		t.Fatalf("round trip mangled batch: %+v", decoded)
	}
}

func TestDecodeRecordsCompressed(t *testing.T) {
	encoded, err := EncodeRecords(sampleBatch(), true)
	if err != nil {
		t.Fatalf("EncodeRecords: %v", err)
	}
	if encoded[0] != '"' {
		t.Fatalf("compressed batch should be a JSON string: %s", encoded[:1])
	}
	decoded, err := DecodeRecords(encoded)
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(decoded) != 3 || decoded[0].Type != TypeFullSnapshot {
		t.Fatalf("round trip mangled batch: %+v", decoded)
	}
}

func TestDecodeRecordsEmbeddedJSONString(t *testing.T) {
	inner, err := EncodeRecords(sampleBatch(), false)
	if err != nil {
		t.Fatalf("EncodeRecords: %v", err)
	}
	wrapped, err := json.Marshal(string(inner))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	decoded, err := DecodeRecords(wrapped)
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(decoded) != 3 {
		t.Fatalf("got %d records", len(decoded))
	}
}

func TestDecodeRecordsEmptyForms(t *testing.T) {
	for _, raw := range []string{"", "null", `""`} {
		decoded, err := DecodeRecords(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("DecodeRecords(%q): %v", raw, err)
		}
		if len(decoded) != 0 {
			t.Fatalf("DecodeRecords(%q) = %+v", raw, decoded)
		}
	}
}

func TestDecodeRecordsRejectsGarbage(t *testing.T) {
	if _, err := DecodeRecords(json.RawMessage(`"definitely not base64 !!!"`)); err == nil {
		t.Fatal("expected error for undecodable string")
	}
	if _, err := DecodeRecords(json.RawMessage(`42`)); err == nil {
		t.Fatal("expected error for numeric payload")
	}
}
