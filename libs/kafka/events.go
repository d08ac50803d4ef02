package kafka

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope is the header carried by every published event.
type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewEnvelope stamps a new event of eventType. With idParts the event id is a
// name-based UUID over the type and parts, so the same fact always maps to
// the same id. Without them the id is random.
func NewEnvelope(eventType string, version int, idParts ...string) (Envelope, error) {
	env := Envelope{
		EventType:    eventType,
		EventVersion: version,
		Timestamp:    time.Now().UTC(),
	}
	if len(idParts) == 0 {
		env.EventID = uuid.NewString()
	} else {
		env.EventID = stableID(eventType, idParts)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Header lets the producer read the envelope of any event that embeds it.
func (e Envelope) Header() Envelope { return e }

func (e Envelope) Validate() error {
	switch {
	case e.EventID == "":
		return errors.New("event_id is required")
	case e.EventType == "":
		return errors.New("event_type is required")
	case e.EventVersion <= 0:
		return errors.New("event_version must be positive")
	case e.Timestamp.IsZero():
		return errors.New("timestamp is required")
	}
	return nil
}

func stableID(eventType string, parts []string) string {
	name := eventType + "|" + strings.Join(parts, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
