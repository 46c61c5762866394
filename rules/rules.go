// Package rules bundles the default terminology catalog.
package rules

import _ "embed"

// DefaultName is the file name of the bundled catalog.
const DefaultName = "default.yaml"

//go:embed default.yaml
var defaultCatalog []byte

// Default returns a copy of the bundled catalog document.
func Default() []byte {
	return append([]byte(nil), defaultCatalog...)
}
