package vault

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid invite state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move away from a terminal
// status (used, expired, revoked) without a force override.
var ErrTerminalState = goerrors.New("invite state is terminal", goerrors.CategoryConflict).
	WithTextCode(TextCodeTerminalState).
	WithCode(goerrors.CodeBadRequest)

// InviteStateMachine defines lifecycle operations for invite codes.
type InviteStateMachine interface {
	Transition(ctx context.Context, code *InviteCode, target InviteStatus, opts ...TransitionOption) (*InviteCode, error)
	CanTransition(from, to InviteStatus) bool
}

// inviteStatusStore persists a status change without lifecycle checks; the
// machine is the only caller that should reach it with a vetted target.
type inviteStatusStore interface {
	UpdateStatus(ctx context.Context, code string, status InviteStatus) (*InviteCode, error)
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	force  bool
	reason string
}

// WithForceTransition bypasses the transition table. The administrative
// set-status endpoint uses it so operators keep the override the original
// storage layer allowed.
func WithForceTransition() TransitionOption {
	return func(o *transitionOptions) {
		o.force = true
	}
}

// WithTransitionReason attaches a human-readable reason for logging.
func WithTransitionReason(reason string) TransitionOption {
	return func(o *transitionOptions) {
		o.reason = reason
	}
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*inviteStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *inviteStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineLogger overrides the logger used for transition logging.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *inviteStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewInviteStateMachine returns the default implementation backed by the
// provided status store. Re-entry into active is never permitted without
// force; used, expired, and revoked are terminal.
func NewInviteStateMachine(store inviteStatusStore, opts ...StateMachineOption) InviteStateMachine {
	sm := &inviteStateMachine{
		store: store,
		transitions: map[InviteStatus]map[InviteStatus]struct{}{
			InviteStatusActive: {
				InviteStatusUsed:    {},
				InviteStatusExpired: {},
				InviteStatusRevoked: {},
			},
			InviteStatusUsed:    {},
			InviteStatusExpired: {},
			InviteStatusRevoked: {},
		},
		now:    time.Now,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type inviteStateMachine struct {
	store       inviteStatusStore
	transitions map[InviteStatus]map[InviteStatus]struct{}
	now         func() time.Time
	logger      Logger
}

func (sm *inviteStateMachine) Transition(ctx context.Context, code *InviteCode, target InviteStatus, opts ...TransitionOption) (*InviteCode, error) {
	if code == nil {
		return nil, errWithMetadata(ErrInvalidTransition, map[string]any{
			"target": target,
			"reason": "invite code is nil",
		})
	}

	if !ValidInviteStatus(target) {
		return nil, errWithMetadata(ErrInvalidStatus, map[string]any{
			"status": target,
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	from := code.Status
	if from == target {
		return code, nil
	}

	if !options.force {
		if allowed, ok := sm.transitions[from]; ok && len(allowed) == 0 {
			return nil, errWithMetadata(ErrTerminalState, map[string]any{
				"from": from,
				"to":   target,
			})
		}
		if !sm.CanTransition(from, target) {
			return nil, errWithMetadata(ErrInvalidTransition, map[string]any{
				"from": from,
				"to":   target,
			})
		}
	}

	updated, err := sm.store.UpdateStatus(ctx, code.Code, target)
	if err != nil {
		return nil, err
	}

	sm.logger.Info("invite %s transition %s -> %s force=%t reason=%q", code.Code, from, target, options.force, options.reason)

	if updated != nil {
		return updated, nil
	}

	code.Status = target
	now := sm.now()
	code.UpdatedAt = &now
	return code, nil
}

func (sm *inviteStateMachine) CanTransition(from, to InviteStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}
