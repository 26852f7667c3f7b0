package thresholds

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yairfalse/vigil/pkg/domain"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML threshold file. Categories missing from the file
// are nil in the returned update.
//
//	cpu:
//	  warning: 75
//	  critical: 92
//	memory:
//	  warning: 85
//	  critical: 97
func LoadFile(path string) (domain.ThresholdUpdate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ThresholdUpdate{}, fmt.Errorf("failed to read threshold file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML threshold document. Unknown keys are rejected.
func Parse(data []byte) (domain.ThresholdUpdate, error) {
	var u domain.ThresholdUpdate
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&u); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ThresholdUpdate{}, nil
		}
		return domain.ThresholdUpdate{}, fmt.Errorf("failed to parse thresholds: %w: %w", domain.ErrValidation, err)
	}
	return u, nil
}
