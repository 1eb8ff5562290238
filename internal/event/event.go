// Package event extracts the manifest URL from Event Grid deliveries.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SubscriptionValidation is the event type Event Grid sends when a webhook subscribes.
const SubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"

var ErrNoManifestURL = errors.New("event carries no data.url")

// PayloadError reports a delivery that is not an Event Grid event or batch.
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid event payload: %s: %v", e.Reason, e.Err)
	}
	return "invalid event payload: " + e.Reason
}

func (e *PayloadError) Unwrap() error { return e.Err }

// Event is the Event Grid envelope. Data stays raw until a field is asked for.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic,omitempty"`
	Subject     string          `json:"subject"`
	EventType   string          `json:"eventType"`
	EventTime   string          `json:"eventTime,omitempty"`
	DataVersion string          `json:"dataVersion,omitempty"`
	Data        json.RawMessage `json:"data"`
}

type data struct {
	URL            string `json:"url"`
	ValidationCode string `json:"validationCode"`
}

func (e Event) data() (data, error) {
	var d data
	if len(e.Data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return d, &PayloadError{Reason: "event " + e.ID + " data", Err: err}
	}
	return d, nil
}

// IsValidation reports whether e is a subscription validation handshake.
func (e Event) IsValidation() bool {
	return strings.EqualFold(e.EventType, SubscriptionValidation)
}

// Parse accepts a single event or a batch (JSON array).
func Parse(payload []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, &PayloadError{Reason: "empty body"}
	}

	if trimmed[0] == '[' {
		var events []Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, &PayloadError{Reason: "cannot decode event batch", Err: err}
		}
		if len(events) == 0 {
			return nil, &PayloadError{Reason: "empty event batch"}
		}
		return events, nil
	}

	var e Event
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return nil, &PayloadError{Reason: "cannot decode event", Err: err}
	}
	return []Event{e}, nil
}

// ManifestURLs returns data.url of every non-validation event, in delivery order.
func ManifestURLs(events []Event) ([]string, error) {
	var urls []string
	for _, e := range events {
		if e.IsValidation() {
			continue
		}
		d, err := e.data()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(d.URL) == "" {
			return nil, &PayloadError{Reason: "event " + e.ID, Err: ErrNoManifestURL}
		}
		urls = append(urls, strings.TrimSpace(d.URL))
	}
	return urls, nil
}

// ExtractManifestURL returns data.url of the first event in payload.
func ExtractManifestURL(payload []byte) (string, error) {
	events, err := Parse(payload)
	if err != nil {
		return "", err
	}
	urls, err := ManifestURLs(events)
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		return "", &PayloadError{Reason: "no manifest event", Err: ErrNoManifestURL}
	}
	return urls[0], nil
}

// ValidationCode returns the handshake code when events contain a subscription validation.
func ValidationCode(events []Event) (string, bool, error) {
	for _, e := range events {
		if !e.IsValidation() {
			continue
		}
		d, err := e.data()
		if err != nil {
			return "", false, err
		}
		return d.ValidationCode, true, nil
	}
	return "", false, nil
}

// ValidationResponse is the body Event Grid expects back from the handshake.
type ValidationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}
