// internal/gamekit/errors.go
package gamekit

import (
	"errors"
	"fmt"
)

// RuleKind labels a validation rejection. Kinds are surfaced verbatim to the
// caller; the submitted move is discarded and the state is unchanged.
type RuleKind string

const (
	RuleInvalidMove     RuleKind = "invalid_move"
	RuleNotYourTurn     RuleKind = "not_your_turn"
	RuleInvalidBid      RuleKind = "invalid_bid"
	RuleMustFollow      RuleKind = "must_follow"
	RuleSpadesNotBroken RuleKind = "spades_not_broken"
	RuleOutOfPhase      RuleKind = "out_of_phase"
	RuleAlreadyMoved    RuleKind = "already_moved"
	RuleGameOver        RuleKind = "game_over"
)

// RuleError is a game-rule rejection from ValidateMove. It never wraps an
// I/O failure; callers can tell "your move was illegal" apart from storage
// errors with errors.As.
type RuleError struct {
	Kind    RuleKind
	Message string
}

func (e *RuleError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewRuleError builds a RuleError with a formatted message.
func NewRuleError(kind RuleKind, format string, args ...interface{}) *RuleError {
	return &RuleError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsRule reports whether err is a RuleError of the given kind.
func IsRule(err error, kind RuleKind) bool {
	var re *RuleError
	return errors.As(err, &re) && re.Kind == kind
}

// ErrGameNotFound indicates an unregistered game id.
var ErrGameNotFound = errors.New("game not found")

// ErrGameAlreadyRegistered indicates a duplicate registry entry.
var ErrGameAlreadyRegistered = errors.New("game already registered")
