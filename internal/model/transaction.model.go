package model

import "time"

type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// Transaction is one ledger journal row. Debits reference the message they
// paid for.
type Transaction struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"clientId"`
	Amount       Cents           `json:"amount"`
	Type         TransactionType `json:"type"`
	MessageID    *string         `json:"messageId,omitempty"`
	BalanceAfter Cents           `json:"balanceAfter"`
	CreatedAt    time.Time       `json:"createdAt"`
}
