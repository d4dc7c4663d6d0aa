package economy

import "errors"

// Sentinel errors returned by engine operations. Every mutating operation
// is all-or-nothing: when one of these is returned, no state changed.
var (
	ErrUnauthorized        = errors.New("caller lacks required role")
	ErrInvalidAddress      = errors.New("invalid account address")
	ErrZeroAmount          = errors.New("amount must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrDuplicateActivity = errors.New("activity id already recorded")
	ErrInvalidScore      = errors.New("value score out of bounds")
	ErrMissingEvidence   = errors.New("evidence hash is required")

	ErrBelowMinimumConversion = errors.New("conversion below minimum amount")
	ErrNoStake                = errors.New("account has no active stake")
	ErrStakeLocked            = errors.New("stake is still locked")
	ErrInvalidLock            = errors.New("lock duration must be positive")

	ErrInvalidSplit      = errors.New("split percentages must sum to 100")
	ErrInvalidMultiplier = errors.New("cap multiplier must be between 300 and 500 percent")
	ErrDuplicateInvestor = errors.New("investor already registered")
	ErrBuybackDisabled   = errors.New("buybacks are disabled")
)
