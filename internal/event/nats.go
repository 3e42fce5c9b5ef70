package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Header names set on NATS messages
const (
	HeaderContentType = "Content-Type"
	HeaderDateCreated = "https://schema.org/dateCreated"
	HeaderCreator     = "https://schema.org/creator"
	HeaderCommit      = "https://schema.org/version"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// NATS publishes patch bodies to a subject. Headers carry the patch
// metadata and Nats-Msg-Id enables JetStream de-duplication.
type NATS struct {
	conn    Conn
	subject string
	creator string
	logger  *slog.Logger
}

// NewNATS creates a publisher on an existing connection
func NewNATS(conn Conn, subject, creator string, logger *slog.Logger) *NATS {
	return &NATS{
		conn:    conn,
		subject: subject,
		creator: creator,
		logger:  logger,
	}
}

// DialNATS connects to url
func DialNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// Publish sends the patch body and waits for the server to acknowledge
// the flush.
func (n *NATS) Publish(ctx context.Context, p Patch) error {
	msg := nats.NewMsg(n.subject)
	msg.Data = []byte(p.Body)
	msg.Header.Set(HeaderContentType, ContentTypePatchBody)
	msg.Header.Set(HeaderDateCreated, p.Created.UTC().Format("2006-01-02T15:04:05"))
	msg.Header.Set(HeaderCreator, n.creator)
	msg.Header.Set(nats.MsgIdHdr, p.ID)
	if p.Commit != "" {
		msg.Header.Set(HeaderCommit, p.Commit)
	}

	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish patch to %s: %w", n.subject, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush nats connection: %w", err)
	}
	n.logger.Info("published patch to nats", "subject", n.subject, "patch_id", p.ID)
	return nil
}
