package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// ErrUnknownEvent is returned for payloads with a missing or unrecognized type.
var ErrUnknownEvent = errors.New("unknown event type")

type envelope struct {
	Type domain.EventType `json:"type"`
}

// Marshal encodes an event as a single JSON object carrying its type.
func Marshal(ev domain.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Type(), err)
	}
	head, _ := json.Marshal(envelope{Type: ev.Type()})
	if len(body) <= 2 {
		return head, nil
	}
	// {"type":"x"} + ,"field":... }
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// Unmarshal decodes one JSON payload into its event variant.
func Unmarshal(data []byte) (domain.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	switch env.Type {
	case domain.EventDatasetStart:
		return decode[domain.DatasetStart](data)
	case domain.EventSnapshot:
		return decode[domain.Snapshot](data)
	case domain.EventStepError:
		return decode[domain.StepError](data)
	case domain.EventInitError:
		return decode[domain.InitError](data)
	case domain.EventConnector:
		return decode[domain.Connector](data)
	case domain.EventSkipped:
		return decode[domain.Skipped](data)
	case domain.EventDatasetEnd:
		return decode[domain.DatasetEnd](data)
	case domain.EventComplete:
		return decode[domain.Complete](data)
	case domain.EventError:
		return decode[domain.RunError](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
}

func decode[T domain.Event](data []byte) (domain.Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", ev.Type(), err)
	}
	return ev, nil
}
