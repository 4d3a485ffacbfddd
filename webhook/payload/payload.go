package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

/* Message is the body POSTed to subscriber endpoints.
 * The serialization is canonical: minified JSON with the created timestamp
 * in RFC 3339 UTC, so receivers can recompute the signature over the exact
 * bytes they were sent
 */
type Message struct {
	// ID is the delivery event id; receivers dedupe on it (delivery is at-least-once)
	ID string `json:"id"`

	// Type is a full-stop delimited type associated with the event
	// Examples: "charge.succeeded", "customer.created", "subscription.canceled"
	Type string `json:"type"`

	// Data is the opaque event data; the engine never interprets it
	Data json.RawMessage `json:"data"`

	// Created is when the message was built for this attempt
	Created time.Time `json:"created"`
}

// New creates a Message for an event about to be delivered
func New(id, eventType string, data []byte, created time.Time) (Message, error) {
	msg := Message{
		ID:      id,
		Type:    eventType,
		Data:    data,
		Created: created.UTC(),
	}

	if err := msg.Validate(); err != nil {
		return Message{}, fmt.Errorf("validating message: %w", err)
	}

	return msg, nil
}

// Validate checks the message structure before it goes on the wire
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}

	if err := ValidateEventType(m.Type); err != nil {
		return err
	}

	if m.Created.IsZero() {
		return fmt.Errorf("created is required")
	}

	if len(m.Data) == 0 {
		return fmt.Errorf("data is required")
	}

	if !json.Valid(m.Data) {
		return fmt.Errorf("data must be valid JSON")
	}

	return nil
}

// MarshalJSON returns the canonical JSON encoding of the message
func (m Message) MarshalJSON() ([]byte, error) {
	type Alias Message
	return json.Marshal(&struct {
		*Alias
		Created string `json:"created"`
	}{
		Alias:   (*Alias)(&m),
		Created: m.Created.UTC().Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON parses the JSON-encoded data and stores the result
func (m *Message) UnmarshalJSON(data []byte) error {
	type Alias Message
	aux := &struct {
		*Alias
		Created string `json:"created"`
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling message: %w", err)
	}

	created, err := time.Parse(time.RFC3339Nano, aux.Created)
	if err != nil {
		created, err = time.Parse(time.RFC3339, aux.Created)
		if err != nil {
			return fmt.Errorf("parsing created: %w", err)
		}
	}
	m.Created = created

	return nil
}

// Bytes returns the canonical JSON encoding as bytes (minified, no extra whitespace)
func (m Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Parse parses wire bytes back into a Message
func Parse(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshaling message: %w", err)
	}

	if err := msg.Validate(); err != nil {
		return Message{}, fmt.Errorf("validating message: %w", err)
	}

	return msg, nil
}

// ValidateEventType validates an event type format
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	if !eventTypePattern.MatchString(eventType) {
		return fmt.Errorf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", eventType)
	}

	return nil
}
