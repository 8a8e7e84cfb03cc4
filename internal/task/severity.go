package task

import (
	"fmt"

	"github.com/mightora/playwright-powerplatform/internal/logger"
)

type opKind string

const (
	opResolveUser         opKind = "resolve user"
	opResolveBusinessUnit opKind = "resolve business unit"
	opUpdateBusinessUnit  opKind = "update business unit"
	opResolveRole         opKind = "resolve role"
	opClearRoles          opKind = "clear existing roles"
	opAssignRole          opKind = "assign role"
	opResolveTeam         opKind = "resolve team"
	opJoinTeam            opKind = "join team"
)

type severity int

const (
	// fatal aborts the provisioning phase. The phase itself is still
	// recoverable at the run level: the tests execute regardless.
	fatal severity = iota
	// recoverable is logged and skipped.
	recoverable
)

// opSeverity is the single place the abort-vs-continue policy lives. Per-call
// error handling in provision() just consults it through runOp.
var opSeverity = map[opKind]severity{
	opResolveUser:         fatal,
	opResolveBusinessUnit: fatal,
	opUpdateBusinessUnit:  fatal,
	opResolveRole:         fatal,
	opClearRoles:          recoverable,
	opAssignRole:          fatal,
	opResolveTeam:         fatal,
	opJoinTeam:            fatal,
}

// runOp applies the severity policy to one provisioning operation.
func (o *Orchestrator) runOp(kind opKind, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if opSeverity[kind] == recoverable {
		logger.Warnf("%s failed (continuing): %v", kind, err)
		return nil
	}
	return fmt.Errorf("%s: %w", kind, err)
}
