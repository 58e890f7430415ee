package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

type FileLoader struct {
	Path string
}

func (l FileLoader) Load(_ context.Context) (Description, error) {
	return LoadFile(l.Path)
}

// LoadFile reads a description from either {"tables": [...]} or a bare table
// array.
func LoadFile(path string) (Description, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Description{}, fmt.Errorf("read schema file: %w", err)
	}
	desc, err := Parse(raw)
	if err != nil {
		return Description{}, fmt.Errorf("parse schema file %q: %w", path, err)
	}
	return desc, nil
}

func Parse(raw []byte) (Description, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Description{}, nil
	}

	var desc Description
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &desc.Tables); err != nil {
			return Description{}, fmt.Errorf("decode table list: %w", err)
		}
	} else {
		if err := json.Unmarshal(trimmed, &desc); err != nil {
			return Description{}, fmt.Errorf("decode description: %w", err)
		}
	}
	if err := desc.Validate(); err != nil {
		return Description{}, err
	}
	return desc, nil
}
