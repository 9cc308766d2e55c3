// Package realtime is the topic-based fan-out layer: live connections
// subscribe to order/table/venue/organization topics and receive lifecycle
// events best-effort, at most once.
package realtime

import (
	"fmt"
	"strings"
	"time"
)

const (
	TopicKindOrder        = "order"
	TopicKindTable        = "table"
	TopicKindVenue        = "venue"
	TopicKindOrganization = "organization"
)

func OrderTopic(id string) string        { return TopicKindOrder + ":" + id }
func TableTopic(id string) string        { return TopicKindTable + ":" + id }
func VenueTopic(id string) string        { return TopicKindVenue + ":" + id }
func OrganizationTopic(id string) string { return TopicKindOrganization + ":" + id }

// SplitTopic validates "kind:id" and returns the kind.
func SplitTopic(topic string) (kind string, err error) {
	kind, id, ok := strings.Cut(topic, ":")
	if !ok || id == "" {
		return "", fmt.Errorf("malformed topic %q", topic)
	}
	switch kind {
	case TopicKindOrder, TopicKindTable, TopicKindVenue, TopicKindOrganization:
		return kind, nil
	}
	return "", fmt.Errorf("unknown topic kind %q", kind)
}

// RestrictedTopic reports whether the topic requires an authenticated
// connection. Order- and table-level topics stay open to public viewers.
func RestrictedTopic(topic string) bool {
	kind, err := SplitTopic(topic)
	if err != nil {
		return true
	}
	return kind == TopicKindVenue || kind == TopicKindOrganization
}

const (
	EventOrderCreated      = "order_created"
	EventOrderUpdated      = "order_updated"
	EventOrderStatus       = "order_status_changed"
	EventOrderDeleted      = "order_deleted"
	EventOrderItemsAdded   = "order_items_added"
	EventOrderItemsRemoved = "order_items_removed"
	EventOrderItemUpdated  = "order_item_updated"
	EventError             = "error"
	EventSubscribed        = "subscribed"
	EventUnsubscribed      = "unsubscribed"
)

// Event is the wire payload pushed to subscribers. Order-level events carry
// the order/table/venue/organization ids; item-level events add the item id.
type Event struct {
	Type           string    `json:"type"`
	Topic          string    `json:"topic,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	OrderItemID    string    `json:"order_item_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	TableID        string    `json:"table_id,omitempty"`
	VenueID        string    `json:"venue_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Message        string    `json:"message,omitempty"`
}
