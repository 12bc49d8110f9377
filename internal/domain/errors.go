package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors matched by the typed errors below via errors.Is.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrNotImplemented = errors.New("not implemented")
	ErrExternal       = errors.New("external collaborator error")
	ErrTimeout        = errors.New("timed out")
	ErrReportNotFound = errors.New("report not found")
	ErrReportBusy     = errors.New("report is locked by another run")
)

// ConfigurationError reports invalid settings or portfolio weights.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NotImplementedStrategyError is returned when a pricing strategy has no implementation.
type NotImplementedStrategyError struct {
	Strategy PriceStrategy
}

func (e *NotImplementedStrategyError) Error() string {
	return fmt.Sprintf("price strategy %q is not implemented", e.Strategy)
}

func (e *NotImplementedStrategyError) Is(target error) bool { return target == ErrNotImplemented }

// ExternalCollaboratorError wraps any failure at the broker or price-data boundary.
type ExternalCollaboratorError struct {
	Op  string
	Err error
}

func (e *ExternalCollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalCollaboratorError) Unwrap() error { return e.Err }

func (e *ExternalCollaboratorError) Is(target error) bool { return target == ErrExternal }

// External wraps err as an ExternalCollaboratorError unless it already is one.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalCollaboratorError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalCollaboratorError{Op: op, Err: err}
}

// TimeoutError is returned by the bounded wait when the deadline passes.
// It carries the last statuses observed so callers can decide what to do next.
type TimeoutError struct {
	Elapsed  time.Duration
	Statuses []OrderStatus
}

func (e *TimeoutError) Error() string {
	unresolved := 0
	for _, s := range e.Statuses {
		if !s.Resolved() {
			unresolved++
		}
	}
	return fmt.Sprintf("orders not resolved after %s (%d of %d pending)", e.Elapsed.Round(time.Second), unresolved, len(e.Statuses))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ReportNotFoundError is returned when no report matches a lookup.
type ReportNotFoundError struct {
	Name        string
	CreatedTime string
}

func (e *ReportNotFoundError) Error() string {
	if e.CreatedTime == "" {
		return fmt.Sprintf("report %q not found", e.Name)
	}
	return fmt.Sprintf("report %q created at %s not found", e.Name, e.CreatedTime)
}

func (e *ReportNotFoundError) Is(target error) bool { return target == ErrReportNotFound }
