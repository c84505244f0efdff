package security

import (
	"context"
	"errors"
	"log/slog"
)

// Manager composes the command policy with one or more audit sinks.
// It holds no state of its own; each sub-component manages its own
// synchronization.
type Manager struct {
	policy   *CommandPolicy
	auditors []Auditor
	logger   *slog.Logger
}

// NewManager creates a composed security manager. A nil policy allows
// every allowlisted command.
func NewManager(policy *CommandPolicy, logger *slog.Logger, auditors ...Auditor) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{policy: policy, auditors: auditors, logger: logger}
}

// CheckCommand implements executor.Policy.
func (m *Manager) CheckCommand(name string) error {
	if m.policy == nil {
		return nil
	}
	return m.policy.CheckCommand(name)
}

// LogAttempt writes the event to every sink. A failing sink does not stop
// the others.
func (m *Manager) LogAttempt(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, a := range m.auditors {
		if err := a.LogAttempt(ctx, event); err != nil {
			m.logger.WarnContext(ctx, "audit sink failed", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases every sink.
func (m *Manager) Close() error {
	var errs []error
	for _, a := range m.auditors {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}
