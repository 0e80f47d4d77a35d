// Package content provides content-addressed stores. Identifiers are the
// lowercase hex sha256 of the content itself, so a resolved identifier
// can never yield different bytes on a later call.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/passagehq/passage/internal/ports"
)

// Store is a resolver that can also ingest content. Put returns the
// identifier the content is addressable under.
type Store interface {
	ports.ContentResolver
	Put(ctx context.Context, content []byte) (cid string, err error)
}

// CID derives the content identifier for a blob.
func CID(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ValidateID rejects identifiers that cannot be content addresses. A
// malformed identifier is the one case resolvers report as an error
// rather than a miss.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty content identifier")
	}
	for _, c := range id {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return fmt.Errorf("malformed content identifier %q", id)
		}
	}
	return nil
}
