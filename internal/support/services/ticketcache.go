package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gridassist/server/internal/core/errx"
	logx "github.com/gridassist/server/pkg/logger"
)

// IdempotentTicketCreator deduplicates ticket creation per
// (conversation, subject, priority). A repeat request for the same key
// returns the previously obtained incident id instead of creating a second
// ticket, and concurrent attempts for the same key (network retry racing a
// user re-send) collapse into a single backend call.
type IdempotentTicketCreator struct {
	store TicketStore

	mu    sync.Mutex
	cache map[string]string

	group singleflight.Group
}

func NewIdempotentTicketCreator(store TicketStore) *IdempotentTicketCreator {
	return &IdempotentTicketCreator{
		store: store,
		cache: map[string]string{},
	}
}

func requestKey(conversationID, subject, priority string) string {
	return fmt.Sprintf("%s:%s:%s", conversationID, subject, strings.ToLower(priority))
}

// Create submits the incident unless the same key was already honored in this
// process. The returned id is never empty on success.
func (c *IdempotentTicketCreator) Create(ctx context.Context, conversationID string, in CreateTicketInput) (string, error) {
	key := requestKey(conversationID, in.Subject, in.Priority)

	c.mu.Lock()
	if id, ok := c.cache[key]; ok {
		c.mu.Unlock()
		logx.Warn().
			Str("conversation_id", conversationID).
			Str("incident_id", id).
			Msg("duplicate ticket request, returning cached id")
		return id, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: a racing caller may have filled the
		// cache between our check and Do.
		c.mu.Lock()
		if id, ok := c.cache[key]; ok {
			c.mu.Unlock()
			return id, nil
		}
		c.mu.Unlock()

		id, err := c.store.Create(ctx, in)
		if err != nil {
			return "", errx.WrapExternalService("ticket store", err)
		}
		if id == "" || id == "UNKNOWN" {
			return "", errx.New(errx.ErrTicketIDMissing, 502, errx.TicketIDMissingMessage)
		}

		c.mu.Lock()
		c.cache[key] = id
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
