package record

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EncodeRecords serializes a batch for the wire. With compress set, the
// JSON array is gzipped and base64-encoded into a JSON string; otherwise
// the array is sent as-is. Receivers accept either form.
func EncodeRecords(records []Record, compress bool) (json.RawMessage, error) {
	raw, err := MarshalRecords(records)
	if err != nil {
		return nil, err
	}
	if !compress {
		return raw, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}

	encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return encoded, nil
}

// DecodeRecords reverses EncodeRecords, tolerating every form a batch has
// ever been stored in: a native JSON array, a JSON string holding an
// array, or a JSON string holding base64-encoded gzip of an array.
func DecodeRecords(raw json.RawMessage) ([]Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode batch array: %w", err)
		}
		return records, nil
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("decode batch string: %w", err)
		}
		return decodeBatchString(inner)
	}

	return nil, fmt.Errorf("decode batch: unrecognized payload starting with %q", trimmed[0])
}

func decodeBatchString(payload string) ([]Record, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	if payload[0] == '[' {
		var records []Record
		if err := json.Unmarshal([]byte(payload), &records); err != nil {
			return nil, fmt.Errorf("decode embedded batch array: %w", err)
		}
		return records, nil
	}

	compressed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode batch base64: %w", err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open batch gzip: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress batch: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode decompressed batch: %w", err)
	}
	return records, nil
}
