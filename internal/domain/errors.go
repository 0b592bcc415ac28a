package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotReady signals that a batch has jobs that are not terminal yet.
	// It continues the poll loop and is never surfaced as a failure.
	ErrNotReady = errors.New("batch not ready")

	// ErrPollTimeout is returned when polling exceeds its attempt or time budget.
	ErrPollTimeout = errors.New("batch polling timed out")
)

// TransportError is an HTTP-level failure: network error or non-2xx status.
type TransportError struct {
	Op     string
	Status int // 0 for network errors
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a 2xx response whose envelope reports failure or cannot be decoded.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string { return e.Op + ": " + e.Detail }

// DataAbsentError means every job is terminal but there is nothing usable to load.
type DataAbsentError struct {
	BatchID BatchID
	Reason  string
}

func (e *DataAbsentError) Error() string {
	return fmt.Sprintf("batch %s: no data: %s", e.BatchID, e.Reason)
}

// SinkError carries the row-level errors reported by a warehouse load job.
type SinkError struct {
	Table  string
	Errors []string
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("load into %s failed: %s", e.Table, strings.Join(e.Errors, "; "))
}
