// Package event delivers RDF patches to downstream consumers: an RDF Delta
// patch log server, a NATS subject, or a plain file.
package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Media types of patch payloads
const (
	// ContentTypePatch is a full patch including H headers.
	ContentTypePatch = "application/rdf-patch"
	// ContentTypePatchBody is a bare TX..TC transaction.
	ContentTypePatchBody = "application/rdf-patch-body"
)

// Patch is one change-log entry.
type Patch struct {
	ID   string
	Prev string
	// Body is the transaction from "TX ." to "TC .".
	Body    string
	Commit  string
	Created time.Time
	Adds    int
	Removes int
}

// NewPatch assigns a fresh identifier to body
func NewPatch(body string, now time.Time) Patch {
	return Patch{
		ID:      uuid.NewString(),
		Body:    body,
		Created: now.UTC(),
	}
}

// Header returns the H lines of the patch
func (p Patch) Header() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "H id <uuid:%s> .\n", p.ID)
	if p.Prev != "" {
		fmt.Fprintf(&sb, "H prev <uuid:%s> .\n", p.Prev)
	}
	return sb.String()
}

// Text returns the complete patch, headers first.
func (p Patch) Text() string {
	return p.Header() + p.Body
}

// Publisher delivers patches.
type Publisher interface {
	Publish(ctx context.Context, p Patch) error
}

// PatchLog is implemented by publishers that know the id of the last patch
// they accepted, so new patches can point back at it.
type PatchLog interface {
	LatestPatchID(ctx context.Context) (string, error)
}

// trimID strips the scheme prefixes patch ids are written with.
func trimID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(strings.TrimSuffix(id, ">"), "<")
	for _, prefix := range []string{"uuid:", "id:"} {
		id = strings.TrimPrefix(id, prefix)
	}
	return id
}
