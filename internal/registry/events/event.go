// Package events publishes registry changes to Kafka after they commit and
// reads them back for tooling.
package events

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	DocumentNumbered EventType = "document_numbered"
	DocumentUpdated  EventType = "document_updated"
	DocumentArchived EventType = "document_archived"
	DocumentDeleted  EventType = "document_deleted"

	ReportNumbered EventType = "report_numbered"
	ReportUpdated  EventType = "report_updated"
	ReportArchived EventType = "report_archived"
	ReportDeleted  EventType = "report_deleted"

	CustomerCreated  EventType = "customer_created"
	CustomerUpdated  EventType = "customer_updated"
	CustomerArchived EventType = "customer_archived"

	ContractCreated       EventType = "contract_created"
	ContractUpdated       EventType = "contract_updated"
	ContractArchived      EventType = "contract_archived"
	ContractStatusChanged EventType = "contract_status_changed"

	YearLockChanged EventType = "year_lock_changed"
	CounterAdjusted EventType = "counter_adjusted"
	SettingsUpdated EventType = "settings_updated"
)

// Event is the Kafka message body. Payload is the JSON snapshot of the
// affected record taken when the event was produced.
type Event struct {
	Type       EventType       `json:"type"`
	Key        string          `json:"key"`
	Actor      string          `json:"actor,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NopProducer drops every event. It stands in when no brokers are configured.
type NopProducer struct{}

func (NopProducer) Produce(EventType, string, string, interface{}) {}

func (NopProducer) Close() {}
