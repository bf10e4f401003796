package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ToYAML serializes a record for the file-based stage handoff.
func ToYAML(v any) ([]byte, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return out, nil
}

// FromYAML parses a stage record.
func FromYAML(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	return nil
}

// WriteYAMLFile writes a record to path.
func WriteYAMLFile(path string, v any) error {
	data, err := ToYAML(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadYAMLFile reads a record from path.
func ReadYAMLFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := FromYAML(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Hash returns a 12-hex-character digest of the record's serialized form,
// optionally salted with seed. Used for batch identity.
func Hash(v any, seed string) (string, error) {
	data, err := ToYAML(v)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(seed))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))[:12], nil
}
