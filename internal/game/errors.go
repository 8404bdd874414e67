package game

import (
	"errors"
	"fmt"
)

// Category is the coarse error taxonomy reported to clients.
type Category string

const (
	CategoryProtocol Category = "ProtocolError"
	CategoryInvalid  Category = "InvalidAction"
	CategoryNotFound Category = "NotFound"
	CategoryBankrupt Category = "Bankruptcy"
	CategoryInternal Category = "InternalInvariantViolation"
)

type Code string

const (
	CodeProtocol          Code = "PROTOCOL_ERROR"
	CodeUnknownMessage    Code = "UNKNOWN_MESSAGE"
	CodeInvalidAction     Code = "INVALID_ACTION"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeNotYourTurn       Code = "NOT_YOUR_TURN"
	CodeNotAwaited        Code = "NOT_AWAITED"
	CodeNotHost           Code = "NOT_HOST"
	CodeNotEnoughPlayers  Code = "NOT_ENOUGH_PLAYERS"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnknownSession    Code = "UNKNOWN_SESSION"
	CodeLobbyFull         Code = "LOBBY_FULL"
	CodeAlreadyStarted    Code = "ALREADY_STARTED"
	CodeAlreadyInLobby    Code = "ALREADY_IN_LOBBY"
	CodeNameTaken         Code = "NAME_TAKEN"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeBankruptcy        Code = "BANKRUPTCY"
	CodeInternal          Code = "INTERNAL"
)

// Category maps a code onto the error taxonomy.
func (c Code) Category() Category {
	switch c {
	case CodeProtocol, CodeUnknownMessage, CodeRateLimited:
		return CategoryProtocol
	case CodeNotFound, CodeUnknownSession:
		return CategoryNotFound
	case CodeBankruptcy:
		return CategoryBankrupt
	case CodeInternal:
		return CategoryInternal
	default:
		return CategoryInvalid
	}
}

// Error is a rule or protocol error that is reported to the client that
// caused it. It never implies a state change.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidState      = &Error{Code: CodeInvalidState, Message: "action not allowed now"}
	ErrNotYourTurn       = &Error{Code: CodeNotYourTurn, Message: "not your turn"}
	ErrNotAwaited        = &Error{Code: CodeNotAwaited, Message: "no matching choice is awaited"}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrInternal          = &Error{Code: CodeInternal, Message: "internal error"}
)

// BankruptcyError is returned by the ledger when a debt cannot be covered
// even after liquidating every asset. No money has moved.
type BankruptcyError struct {
	PlayerID string
	Creditor string
	Amount   int64
}

func (e *BankruptcyError) Error() string {
	return fmt.Sprintf("player %s cannot pay %d to %s", e.PlayerID, e.Amount, e.Creditor)
}

func (e *BankruptcyError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == CodeBankruptcy
}

var ErrBankruptcy = &Error{Code: CodeBankruptcy, Message: "bankrupt"}

// CodeOf extracts the client-facing code from err.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	var be *BankruptcyError
	if errors.As(err, &be) {
		return CodeBankruptcy
	}
	return CodeInternal
}

// CategoryOf returns the taxonomy category of err.
func CategoryOf(err error) Category {
	return CodeOf(err).Category()
}

// internalf marks an invariant violation. Sessions tear themselves down on it.
func internalf(format string, args ...any) *Error {
	return NewError(CodeInternal, format, args...)
}
