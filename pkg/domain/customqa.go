package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// CustomQASchemaVersion is the only custom question/answer layout accepted today.
const CustomQASchemaVersion = 1

// Limits applied when CustomQA is validated at the system boundary.
const (
	MaxCustomQAAnswers   = 50
	MaxCustomQAKeyLength = 128
	MaxCustomQAValueSize = 4000
)

// ErrInvalidCustomQA marks a custom question/answer payload rejected at the boundary.
var ErrInvalidCustomQA = errors.New("invalid custom_q_a")

// CustomQA is the versioned key-value map of job-specific questions and the
// talent's answers. The core stores it opaquely; Validate runs at the edge.
type CustomQA struct {
	SchemaVersion int               `json:"schema_version"`
	Answers       map[string]string `json:"answers"`
}

// Clone returns a deep copy of the map.
func (q CustomQA) Clone() CustomQA {
	cp := CustomQA{SchemaVersion: q.SchemaVersion}
	if q.Answers != nil {
		cp.Answers = make(map[string]string, len(q.Answers))
		for k, v := range q.Answers {
			cp.Answers[k] = v
		}
	}
	return cp
}

// Validate checks schema version and size limits.
func (q CustomQA) Validate() error {
	if q.SchemaVersion != CustomQASchemaVersion {
		return fmt.Errorf("%w: unsupported schema_version %d", ErrInvalidCustomQA, q.SchemaVersion)
	}
	if len(q.Answers) > MaxCustomQAAnswers {
		return fmt.Errorf("%w: %d answers exceeds limit %d", ErrInvalidCustomQA, len(q.Answers), MaxCustomQAAnswers)
	}
	for k, v := range q.Answers {
		if k == "" {
			return fmt.Errorf("%w: empty question key", ErrInvalidCustomQA)
		}
		if utf8.RuneCountInString(k) > MaxCustomQAKeyLength {
			return fmt.Errorf("%w: question key %q too long", ErrInvalidCustomQA, k)
		}
		if utf8.RuneCountInString(v) > MaxCustomQAValueSize {
			return fmt.Errorf("%w: answer for %q too long", ErrInvalidCustomQA, k)
		}
	}
	return nil
}
