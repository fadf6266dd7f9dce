package models

// Wallet balance never goes below zero in a committed state.
type Wallet struct {
	ID        uint  `gorm:"primaryKey" json:"-"`
	UserID    int64 `gorm:"uniqueIndex;not null" json:"userId"`
	Balance   int64 `gorm:"not null;default:0" json:"balance"`
	CreatedTs int64 `gorm:"not null" json:"createdTs"`
	UpdatedTs int64 `gorm:"not null" json:"updatedTs"`
}

type TransactionType string

const (
	TxAddBalance    TransactionType = "ADD_BALANCE"
	TxWithdraw      TransactionType = "WITHDRAW"
	TxPayForContest TransactionType = "PAY_FOR_CONTEST"
	TxContestWin    TransactionType = "CONTEST_WIN"
)

// Sign is +1 for credits and -1 for debits.
func (t TransactionType) Sign() int64 {
	switch t {
	case TxWithdraw, TxPayForContest:
		return -1
	default:
		return 1
	}
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxError     TransactionStatus = "ERROR"
)

// WalletTransaction is an append-only ledger row. Only PENDING rows are ever
// updated, and only once, to COMPLETED or ERROR.
type WalletTransaction struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	UserID          int64             `gorm:"not null;index:idx_wtx_user_type_status,priority:1" json:"userId"`
	TransactionType TransactionType   `gorm:"size:24;not null;index:idx_wtx_user_type_status,priority:2" json:"transactionType"`
	Amount          int64             `gorm:"not null" json:"amount"`
	Status          TransactionStatus `gorm:"size:16;not null;index:idx_wtx_user_type_status,priority:3" json:"status"`
	BalanceBefore   int64             `gorm:"not null" json:"balanceBefore"`
	BalanceAfter    *int64            `json:"balanceAfter,omitempty"`
	ContestID       *string           `gorm:"size:36;index" json:"contestId,omitempty"`
	TrackingID      *string           `gorm:"size:128" json:"trackingId,omitempty"`
	ErrorReason     *string           `json:"errorReason,omitempty"`
	Remarks         *string           `json:"remarks,omitempty"`
	CreatedTs       int64             `gorm:"not null" json:"createdTs"`
	UpdatedTs       int64             `gorm:"not null" json:"updatedTs"`
}
