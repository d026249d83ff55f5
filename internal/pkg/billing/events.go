package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/proshotai/proshot/internal/pkg/stripe"
)

// EventKind is the closed set of webhook event types the plan sync handles.
// Everything else maps to EventUnknown and is acknowledged without effect.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCustomerCreated
	EventCustomerDeleted
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventCheckoutCompleted
)

func kindOf(eventType string) EventKind {
	switch eventType {
	case "customer.created":
		return EventCustomerCreated
	case "customer.deleted":
		return EventCustomerDeleted
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	case "checkout.session.completed":
		return EventCheckoutCompleted
	default:
		return EventUnknown
	}
}

// Event is one parsed webhook delivery. Exactly one of Subscription,
// Checkout or Customer is populated depending on Kind.
type Event struct {
	ID      string
	Kind    EventKind
	Type    string
	Created time.Time

	Subscription *stripe.Subscription
	Checkout     *stripe.CheckoutSession
	Customer     *stripe.Customer
}

// CustomerID returns the billing identity the event refers to.
func (e *Event) CustomerID() string {
	switch {
	case e.Subscription != nil:
		return e.Subscription.Customer
	case e.Checkout != nil:
		return e.Checkout.Customer
	case e.Customer != nil:
		return e.Customer.ID
	default:
		return ""
	}
}

// ErrInvalidEnvelope signals a payload that is not a parsable event envelope.
var ErrInvalidEnvelope = errors.New("invalid webhook event envelope")

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook envelope {id, type, created, data.object}
// into a typed Event. Unrecognized types yield Kind == EventUnknown with the
// raw type preserved for logging.
func ParseEvent(raw []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}

	event := &Event{
		ID:      env.ID,
		Kind:    kindOf(env.Type),
		Type:    env.Type,
		Created: time.Unix(env.Created, 0),
	}

	switch event.Kind {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(env.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription object: %v", ErrInvalidEnvelope, err)
		}
		if sub.Customer == "" {
			return nil, fmt.Errorf("%w: subscription without customer", ErrInvalidEnvelope)
		}
		event.Subscription = &sub
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(env.Data.Object, &session); err != nil {
			return nil, fmt.Errorf("%w: checkout object: %v", ErrInvalidEnvelope, err)
		}
		event.Checkout = &session
	case EventCustomerCreated, EventCustomerDeleted:
		var customer stripe.Customer
		if err := json.Unmarshal(env.Data.Object, &customer); err != nil {
			return nil, fmt.Errorf("%w: customer object: %v", ErrInvalidEnvelope, err)
		}
		event.Customer = &customer
	}

	return event, nil
}
