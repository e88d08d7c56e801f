package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Ledger errors
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrNegativeBalance = errors.New("balance must not be negative")

	// Account errors
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrSystemAccount      = errors.New("system accounts cannot be deactivated")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrEmptyAccountCode   = errors.New("account code must not be empty")
	ErrEmptyAccountName   = errors.New("account name must not be empty")
	ErrInvalidPostAmount  = errors.New("posting amount must be positive")
	ErrNoBalanceChange    = errors.New("adjusted balance equals current balance")

	// Journal errors
	ErrEntryNotFound        = errors.New("journal entry not found")
	ErrEntryAlreadyReversed = errors.New("journal entry already reversed")
	ErrEntryIsReversal      = errors.New("reversal entries cannot be reversed")

	// Period errors
	ErrPeriodNotCurrent    = errors.New("period is not the account's current open period")
	ErrPeriodAlreadyClosed = errors.New("period already closed")

	// Gift card errors
	ErrCardExists      = errors.New("gift card already exists")
	ErrCardNotFound    = errors.New("gift card not found")
	ErrCardNotActive   = errors.New("gift card is not active")
	ErrCardTerminal    = errors.New("gift card is expired or cancelled")
	ErrCardNotInactive = errors.New("gift card has already been activated")

	// Drawer errors
	ErrDrawerNotFound = errors.New("cash drawer not found")
	ErrDrawerOpen     = errors.New("cash drawer is already open")
	ErrDrawerClosed   = errors.New("cash drawer is not open")

	// Event errors
	ErrUnknownEventType = errors.New("unknown account event type")
)

// InsufficientBalanceError is returned when a debit exceeds the available balance.
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient balance. Available: %s, Requested: %s", e.Available, e.Requested)
}

// IsInsufficientBalance reports whether err is an insufficient balance rejection.
func IsInsufficientBalance(err error) bool {
	var ib *InsufficientBalanceError
	return errors.As(err, &ib)
}
