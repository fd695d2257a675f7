// Package mapper converts tokenized CSV rows into transaction drafts using a
// user-declared column mapping and format configuration.
package mapper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centavohq/centavo/internal/domain/transaction"
)

// Row-level failure taxonomy. All are fatal to the single row, never to the
// whole import; ErrMissingRequiredMapping is fatal to configure/process.
var (
	ErrMissingRequiredMapping = errors.New("missing required field mapping")
	ErrInvalidDate            = errors.New("invalid date")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrEmptyRow               = errors.New("no valid data in row")
)

// transactionIDPrefix marks externally-generated ids created by an import.
const transactionIDPrefix = "IMP-"

// FormatConfig carries the per-import format configuration set by configure.
type FormatConfig struct {
	DateFormat   string
	AmountFormat AmountFormat
	SignStrategy SignStrategy
	Currency     string
}

// Mapper converts rows for one import job. It is stateless per row; the same
// mapper is reused across the whole file scan.
type Mapper struct {
	mapping   ColumnMapping
	format    FormatConfig
	importID  uuid.UUID
	accountID uuid.UUID
	now       func() time.Time
}

// New creates a mapper after validating the required field mappings.
func New(mapping ColumnMapping, format FormatConfig, importID, accountID uuid.UUID) (*Mapper, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{
		mapping:   mapping,
		format:    format,
		importID:  importID,
		accountID: accountID,
		now:       time.Now,
	}, nil
}

// Map converts one tokenized row into a transaction ready for persistence,
// or a typed row failure.
func (m *Mapper) Map(row []string, rowNum int) (*transaction.Transaction, error) {
	// The mapping was validated at configure time; the per-row re-check
	// guards against a job record modified out of band.
	if err := m.mapping.Validate(); err != nil {
		return nil, err
	}

	tx := &transaction.Transaction{
		Type:                    transaction.TypeImported,
		Currency:                m.format.Currency,
		AccountID:               m.accountID,
		BalanceAfterTransaction: decimal.Zero,
	}

	populated := 0
	for field := range m.mapping {
		idx, ok := m.mapping.Column(field)
		if !ok || idx >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[idx])
		if value == "" {
			continue
		}
		populated++

		if err := m.assign(tx, field, value); err != nil {
			return nil, err
		}
	}

	if populated == 0 {
		return nil, ErrEmptyRow
	}

	m.applyDefaults(tx, rowNum)
	return tx, nil
}

// assign converts and sets a single mapped field on the draft.
func (m *Mapper) assign(tx *transaction.Transaction, field Field, value string) error {
	switch field {
	case FieldBookedDate:
		t, err := ParseDate(value, m.format.DateFormat)
		if err != nil {
			return fmt.Errorf("booked_date: %w", err)
		}
		tx.BookedDate = t
	case FieldProcessedDate:
		// A bad processed date is not fatal; it is defaulted later.
		if t, err := ParseDate(value, m.format.DateFormat); err == nil {
			tx.ProcessedDate = t
		}
	case FieldAmount:
		amount, err := ParseAmount(value, m.format.AmountFormat, m.format.SignStrategy)
		if err != nil {
			return err
		}
		tx.Amount = amount
	case FieldPartner:
		tx.Partner = value
	case FieldDescription:
		tx.Description = value
	case FieldTargetIBAN:
		v := value
		tx.TargetIBAN = &v
	case FieldSourceIBAN:
		v := value
		tx.SourceIBAN = &v
	}
	return nil
}

// applyDefaults fills the fields every imported transaction must carry.
func (m *Mapper) applyDefaults(tx *transaction.Transaction, rowNum int) {
	now := m.now()

	tx.TransactionID = transactionIDPrefix + randomSuffix()
	tx.Metadata = map[string]any{
		"import_id":   m.importID.String(),
		"imported_at": now.Format(transaction.CanonicalDateLayout),
		"row_number":  rowNum,
	}

	if tx.ProcessedDate.IsZero() {
		if !tx.BookedDate.IsZero() {
			tx.ProcessedDate = tx.BookedDate
		} else {
			tx.ProcessedDate = now
		}
	}
	if strings.TrimSpace(tx.Partner) == "" {
		tx.Partner = "Unknown"
	}
	if tx.Description == "" {
		tx.Description = "Imported transaction"
	}
}

// randomSuffix returns a 10-character uppercase hex suffix for external ids.
func randomSuffix() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:10])
}
