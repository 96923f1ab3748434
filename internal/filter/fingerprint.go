package filter

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// Fingerprint identifies the request a Spec produces within scope (owner and category).
// Equivalent specs share a fingerprint.
func Fingerprint(scope string, s Spec) (string, error) {
	payload, err := json.Marshal(struct {
		Scope string `json:"scope"`
		Spec  Spec   `json:"spec"`
	}{Scope: scope, Spec: s.Normalized()})
	if err != nil {
		return "", fmt.Errorf("marshal spec: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(payload), 16), nil
}
