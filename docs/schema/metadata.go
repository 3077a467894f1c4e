// Package schema exposes the embedded lifecycle document that describes the
// application status machine to API clients.
package schema

import (
	_ "embed"
	"encoding/json"
	"sync"
)

// Metadata captures the high-level metadata block of the lifecycle document.
type Metadata struct {
	Source string `json:"source"`
	Status string `json:"status"`
}

// Lifecycle is the published status machine: states, terminal states and
// the targets each role may request.
type Lifecycle struct {
	Version  string              `json:"version"`
	Metadata Metadata            `json:"metadata"`
	Entry    string              `json:"entry"`
	Statuses []string            `json:"statuses"`
	Terminal []string            `json:"terminal"`
	Roles    map[string][]string `json:"roles"`
}

// Lifecycle document served to clients.
//
//go:embed lifecycle.json
var lifecycleDoc []byte

var (
	lifecycleOnce sync.Once
	lifecycle     Lifecycle
	lifecycleErr  error
)

// LifecycleDocument returns the raw embedded JSON.
func LifecycleDocument() []byte {
	return append([]byte(nil), lifecycleDoc...)
}

// LoadLifecycle parses the embedded lifecycle document once.
func LoadLifecycle() (Lifecycle, error) {
	lifecycleOnce.Do(func() {
		lifecycleErr = json.Unmarshal(lifecycleDoc, &lifecycle)
	})
	return lifecycle, lifecycleErr
}

// LifecycleVersion returns the document version.
func LifecycleVersion() (string, error) {
	doc, err := LoadLifecycle()
	if err != nil {
		return "", err
	}
	return doc.Version, nil
}
