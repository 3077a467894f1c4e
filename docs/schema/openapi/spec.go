// Package openapi embeds the OpenAPI description of the talentcore HTTP API
// for runtime distribution.
package openapi

import _ "embed"

// LifecycleAPISpec contains the OpenAPI document for the lifecycle API.
//
//go:embed talentcore.yaml
var LifecycleAPISpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), LifecycleAPISpec...)
}
