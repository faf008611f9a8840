package ports

import (
	"context"
	"errors"
	"time"
)

// Category names one of the fixed event classes observers may subscribe to.
// The set is closed: implementations reject anything else.
type Category string

const (
	CategoryExecutionStarted  Category = "execution-started"
	CategoryExecutionFinished Category = "execution-finished"
	CategoryLogMessage        Category = "log-message"
	CategoryMessage           Category = "message"
	CategoryProcessMessage    Category = "process-message"
	CategoryProcessError      Category = "process-error"
)

// ErrUnknownCategory is returned for categories outside the fixed set.
var ErrUnknownCategory = errors.New("unknown event category")

// Categories returns every valid category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryExecutionStarted,
		CategoryExecutionFinished,
		CategoryLogMessage,
		CategoryMessage,
		CategoryProcessMessage,
		CategoryProcessError,
	}
}

// ValidCategory reports whether c is one of the fixed categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryExecutionStarted, CategoryExecutionFinished, CategoryLogMessage,
		CategoryMessage, CategoryProcessMessage, CategoryProcessError:
		return true
	}
	return false
}

// Severity qualifies message-category events.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is what travels on the event bus. RunID and Item are empty when the
// event is not tied to a run or an item.
type Event struct {
	ID        string         `json:"id"`
	Category  Category       `json:"category"`
	Severity  Severity       `json:"severity,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Item      string         `json:"item,omitempty"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventHandler consumes events for one subscribed category.
type EventHandler func(ctx context.Context, event Event) error

// EventBus dispatches events to category subscribers.
//
// Subscriptions are scoped to the subscriber's context: cancelling it removes
// the handler. Unsubscribe removes every handler for a category at once.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, category Category, handler EventHandler) error
	Unsubscribe(ctx context.Context, category Category) error
	Close() error
}
