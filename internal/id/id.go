// Package id generates identifiers and invite tokens.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// tokenAlphabet avoids characters that are easily confused when a token is read aloud or retyped.
const tokenAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// tokenLength gives roughly 128 bits of entropy over tokenAlphabet.
const tokenLength = 22

// Generate creates a prefixed unique ID using NanoID, e.g. "entry-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Token creates an unprefixed, URL-safe invite token.
func Token() (string, error) {
	tok, err := gonanoid.Generate(tokenAlphabet, tokenLength)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return tok, nil
}
