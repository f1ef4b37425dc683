package mapping

import (
	"encoding/base64"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/minio/blake2b-simd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

// EncodeJSON renders the canonical tree as JSON. Object keys are sorted, so
// equal mappings encode to equal bytes.
func EncodeJSON(m *Mapping) ([]byte, error) {
	b, err := json.Marshal(m.ToTree())
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return b, nil
}

// ParseJSON builds a mapping from JSON in the canonical tree format.
func ParseJSON(b []byte) (*Mapping, error) {
	var tree map[string]interface{}
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return FromTree(tree)
}

// EncodeYAML renders the canonical tree as YAML.
func EncodeYAML(m *Mapping) ([]byte, error) {
	b, err := yaml.Marshal(m.ToTree())
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return b, nil
}

// ParseYAML builds a mapping from YAML in the canonical tree format.
func ParseYAML(b []byte) (*Mapping, error) {
	var tree map[string]interface{}
	if err := yaml.Unmarshal(b, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return FromTree(tree)
}

// EncodeBinary renders the canonical tree as a protobuf Struct, marshaled
// deterministically.
func EncodeBinary(m *Mapping) ([]byte, error) {
	s, err := structpb.NewStruct(m.ToTree())
	if err != nil {
		return nil, fmt.Errorf("struct: %w", err)
	}
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return b, nil
}

// DecodeBinary builds a mapping from the output of EncodeBinary.
func DecodeBinary(b []byte) (*Mapping, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return FromTree(s.AsMap())
}

// Digest names the mapping's content: the blake2b-256 sum of its canonical
// JSON, base64url-encoded. Equal mappings have equal digests.
func (m *Mapping) Digest() (string, error) {
	m.digestOnce.Do(func() {
		var encoded []byte
		encoded, m.digestErr = EncodeJSON(m)
		if m.digestErr != nil {
			return
		}
		m.digest = contentName(encoded)
	})
	return m.digest, m.digestErr
}

func contentName(encoded []byte) string {
	sum := blake2b.Sum256(encoded)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
