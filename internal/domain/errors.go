package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for cross-package error classification. Adapters wrap
// these so callers can branch on the category without importing the
// adapter:
//
//	return fmt.Errorf("replication: samba-tool: %w", domain.ErrToolUnavailable)
var (
	// ErrNotFound indicates the requested audit or report does not exist.
	ErrNotFound = errors.New("not found")

	// ErrToolUnavailable indicates an external program or service needed
	// by an adapter is missing. It is distinct from authentication and
	// network failures.
	ErrToolUnavailable = errors.New("tool unavailable")

	// ErrAborted is returned by stages interrupted by an operator abort.
	ErrAborted = errors.New("aborted")
)

// ConfigurationError reports settings that failed pre-flight validation.
// It is fatal to non-interactive runs and rejected before a job starts.
type ConfigurationError struct {
	Section  string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	section := e.Section
	if section == "" {
		section = "configuration"
	}
	if len(e.Problems) == 0 {
		return fmt.Sprintf("invalid %s", section)
	}
	return fmt.Sprintf("invalid %s: %s", section, strings.Join(e.Problems, "; "))
}

// Add records a validation problem.
func (e *ConfigurationError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil returns e when at least one problem was recorded.
func (e *ConfigurationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// ReplicationError means hash retrieval failed. Fatal to the Replicating stage.
type ReplicationError struct {
	Err error
}

func (e *ReplicationError) Error() string { return "replication failed: " + e.Err.Error() }
func (e *ReplicationError) Unwrap() error { return e.Err }

// EngineError means the recovery engine exited unexpectedly or produced no
// credentials. Fatal to the Cracking stage.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	if e.Engine == "" {
		return "engine failed: " + e.Err.Error()
	}
	return fmt.Sprintf("engine %s failed: %v", e.Engine, e.Err)
}
func (e *EngineError) Unwrap() error { return e.Err }

// AnalysisError is non-fatal; the audit proceeds with a placeholder report.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string { return "analysis failed: " + e.Err.Error() }
func (e *AnalysisError) Unwrap() error { return e.Err }

// NotificationError is non-fatal and scoped to one recipient set.
type NotificationError struct {
	Recipients string
	Err        error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notifying %s failed: %v", e.Recipients, e.Err)
}
func (e *NotificationError) Unwrap() error { return e.Err }

// SchedulingError wraps a failure inside one scheduler tick.
type SchedulingError struct {
	Err error
}

func (e *SchedulingError) Error() string { return "scheduling failed: " + e.Err.Error() }
func (e *SchedulingError) Unwrap() error { return e.Err }

// ResourceBusyError rejects a job start while another audit holds the
// cracking host.
type ResourceBusyError struct {
	ActiveAuditID string
}

func (e *ResourceBusyError) Error() string {
	if e.ActiveAuditID == "" {
		return "resource busy: another audit is active"
	}
	return fmt.Sprintf("resource busy: audit %s is active", e.ActiveAuditID)
}

// IsResourceBusy reports whether err is or wraps a ResourceBusyError.
func IsResourceBusy(err error) bool {
	var busy *ResourceBusyError
	return errors.As(err, &busy)
}
