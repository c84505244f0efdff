// Package security policy.go implements the operator-configured command
// policy. It narrows the executor allowlist and can never widen it.
//
// Deny-first evaluation: Denied checked first; if match, deny.
// Then Allowed checked; if non-empty and no match, deny.
// Empty Allowed = allow every allowlisted command.
package security

import (
	"fmt"
	"log/slog"
	"sync"
)

// CommandPolicy restricts which allowlisted commands learners may run.
// Thread-safe for concurrent use.
type CommandPolicy struct {
	mu      sync.RWMutex
	allowed []string
	denied  []string
	logger  *slog.Logger
}

// NewCommandPolicy creates a policy from allow and deny lists.
func NewCommandPolicy(allowed, denied []string, logger *slog.Logger) *CommandPolicy {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CommandPolicy{
		allowed: append([]string(nil), allowed...),
		denied:  append([]string(nil), denied...),
		logger:  logger,
	}
}

// CheckCommand returns nil if the command is allowed under the policy.
func (p *CommandPolicy) CheckCommand(name string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := checkAllowDeny(name, p.allowed, p.denied, "command"); err != nil {
		p.logger.Debug("command refused by policy", slog.String("command", name))
		return err
	}
	return nil
}

// Deny adds commands to the deny list at runtime.
func (p *CommandPolicy) Deny(names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denied = append(p.denied, names...)
}

// checkAllowDeny implements deny-first, then allow-list logic for exact matches.
func checkAllowDeny(value string, allowed, denied []string, label string) error {
	// Deny list checked first.
	for _, d := range denied {
		if d == value {
			return fmt.Errorf("%w: %s %q is disabled on this server", ErrPermissionDenied, label, value)
		}
	}
	// If allow list is non-empty, value must be in it.
	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == value {
				return nil
			}
		}
		return fmt.Errorf("%w: %s %q is not enabled on this server", ErrPermissionDenied, label, value)
	}
	return nil // Empty allow list = allow all.
}
