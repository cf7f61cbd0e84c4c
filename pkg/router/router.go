// Package router delivers outbound messages to a recipient's live local
// connections. Cross-process delivery happens upstream: gateways relay
// accepted messages to each other and each one routes locally.
package router

import (
	"time"

	"github.com/mahaj/chat-core/pkg/model"
	"github.com/mahaj/chat-core/pkg/registry"
)

type Outcome int

const (
	// Delivered means at least one live handle received the message.
	Delivered Outcome = iota
	// RecipientOffline means no live handle took the message here. Still a
	// successful routing: offline delivery belongs to the persistence and
	// push collaborators, the router neither retries nor queues.
	RecipientOffline
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "recipient_offline"
}

// Resolver finds the live local handles for a user.
type Resolver interface {
	Resolve(userID string) []registry.Conn
}

type Router struct {
	resolver Resolver
}

func New(resolver Resolver) *Router {
	return &Router{resolver: resolver}
}

// Route fans msg out to every live handle of its recipient, each copy
// accompanied by a notification event. Delivery is best-effort per handle; a
// full or closing connection does not block the others. A missing recipient
// is a normal outcome, never an error.
func (r *Router) Route(msg model.Message) Outcome {
	conns := r.resolver.Resolve(msg.RecipientID)
	if len(conns) == 0 {
		return RecipientOffline
	}

	payload := model.MessageEvent(msg).Encode()
	note := model.NotificationEvent(model.NewNotification(msg, time.Now())).Encode()

	delivered := false
	for _, conn := range conns {
		if conn.Send(payload) {
			delivered = true
			conn.Send(note)
		}
	}
	if !delivered {
		return RecipientOffline
	}
	return Delivered
}
