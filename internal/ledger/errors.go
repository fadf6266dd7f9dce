package ledger

import "trailsbuddy.com/quiz-contest/internal/apperr"

var (
	ErrContestNotFound     = apperr.New(apperr.KindNotFound, "contest not found")
	ErrContestNotOpen      = apperr.New(apperr.KindInvalidState, "contest is not open for entry")
	ErrAlreadyPaid         = apperr.New(apperr.KindConflict, "contest already paid for user")
	ErrAlreadyStarted      = apperr.New(apperr.KindConflict, "contest already started for user")
	ErrAlreadyFinished     = apperr.New(apperr.KindConflict, "contest already finished for user")
	ErrAlreadyEnded        = apperr.New(apperr.KindConflict, "contest already ended for user")
	ErrInsufficientBalance = apperr.New(apperr.KindInsufficientBalance, "insufficient balance")
	ErrBalanceChanged      = apperr.New(apperr.KindTransactionFailure, "wallet balance changed concurrently")
	ErrInvalidAmount       = apperr.New(apperr.KindValidation, "amount must be at least 1")
	ErrTransactionNotFound = apperr.New(apperr.KindNotFound, "transaction not found")
	ErrNotPending          = apperr.New(apperr.KindConflict, "transaction status is not PENDING")
	ErrAmountMismatch      = apperr.New(apperr.KindValidation, "amount does not match")
	ErrPendingWithdraw     = apperr.New(apperr.KindConflict, "a pending withdraw request already exists")
	ErrMissingAppUpiID     = apperr.New(apperr.KindInternal, "appUpiId not configured")
)
