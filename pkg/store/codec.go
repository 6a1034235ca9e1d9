package store

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/atomevolve/atomevolve-go/internal/types"
)

// Structure payloads are stored as gzip-compressed JSON. The coordinate
// blocks compress well and large stores stay manageable on disk.

// EncodeStructure serializes a structure for storage
func EncodeStructure(s *types.Structure) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeStructure deserializes a stored structure payload
func DecodeStructure(data []byte) (*types.Structure, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	var s types.Structure
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeMeta serializes run metadata
func EncodeMeta(m types.RunMeta) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMeta deserializes run metadata
func DecodeMeta(data []byte) (types.RunMeta, error) {
	var m types.RunMeta
	err := json.Unmarshal(data, &m)
	return m, err
}

// EncodeParents serializes a parent ID list for the parents column
func EncodeParents(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(ids)
	return string(raw), err
}

// DecodeParents deserializes a parents column value
func DecodeParents(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
