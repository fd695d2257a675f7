// Package transaction defines the transaction model shared by the import
// pipeline, the rule engine and manual entry.
package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction type constants
const (
	TypeTransfer    = "TRANSFER"
	TypeCardPayment = "CARD_PAYMENT"
	TypeExchange    = "EXCHANGE"
	TypeWithdrawal  = "WITHDRAWAL"
	TypeDeposit     = "DEPOSIT"
	TypePayment     = "PAYMENT"

	// TypeImported marks rows created by the CSV import pipeline before any
	// rule has classified them.
	TypeImported = "Imported"
)

// CanonicalDateLayout is the single internal representation every parsed
// date format converges to before persistence.
const CanonicalDateLayout = "2006-01-02 15:04:05"

// Transaction is a persisted ledger movement on an account.
type Transaction struct {
	ID                      uuid.UUID
	TransactionID           string // unique external id, e.g. "IMP-4F9A2C71B0"
	Amount                  decimal.Decimal
	Currency                string
	BookedDate              time.Time
	ProcessedDate           time.Time
	Description             string
	Partner                 string
	TargetIBAN              *string
	SourceIBAN              *string
	Type                    string
	BalanceAfterTransaction decimal.Decimal
	Metadata                map[string]any
	AccountID               uuid.UUID
	CategoryID              *uuid.UUID
	MerchantID              *uuid.UUID
	TagIDs                  []uuid.UUID
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// IBAN returns the counterparty IBAN the rule engine matches against:
// the target IBAN when set, otherwise the source IBAN.
func (t *Transaction) IBAN() string {
	if t.TargetIBAN != nil && *t.TargetIBAN != "" {
		return *t.TargetIBAN
	}
	if t.SourceIBAN != nil {
		return *t.SourceIBAN
	}
	return ""
}

// HasTag reports whether the tag is already attached.
func (t *Transaction) HasTag(tagID uuid.UUID) bool {
	for _, id := range t.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

// AddTag attaches a tag, preserving attachment order and uniqueness.
func (t *Transaction) AddTag(tagID uuid.UUID) {
	if !t.HasTag(tagID) {
		t.TagIDs = append(t.TagIDs, tagID)
	}
}
