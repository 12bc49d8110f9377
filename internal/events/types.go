// Package events provides in-process event publication for rebalancing runs.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	ReportCreated   EventType = "REPORT_CREATED"
	PricesRefreshed EventType = "PRICES_REFRESHED"
	PlanGenerated   EventType = "PLAN_GENERATED"
	OrderSubmitted  EventType = "ORDER_SUBMITTED"
	OrdersResolved  EventType = "ORDERS_RESOLVED"
	OrderCancelled  EventType = "ORDER_CANCELLED"
	ReportArchived  EventType = "REPORT_ARCHIVED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
