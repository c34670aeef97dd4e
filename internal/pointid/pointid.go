// Package pointid derives deterministic point IDs for vector stores that only accept UUIDs.
package pointid

import (
	"github.com/google/uuid"
)

// namespace scopes ragprobe point IDs within UUID v5.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hyperjump/ragprobe/chunk"))

// For returns a stable UUID for chunkID under modelID. The same pair always
// yields the same ID, so re-ingestion overwrites instead of duplicating.
func For(modelID, chunkID string) string {
	return uuid.NewSHA1(namespace, []byte(modelID+"\x00"+chunkID)).String()
}
