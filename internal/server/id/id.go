// Package id generates unique identifiers for stored entities.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Generate returns a 21-character nanoid using a lowercase alphanumeric
// alphabet, safe for use in URLs and case-insensitive stores.
func Generate() string {
	id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 21)
	if err != nil {
		panic(fmt.Sprintf("generate nanoid: %v", err))
	}
	return id
}
