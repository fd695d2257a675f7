package mapper

import "fmt"

// Field is a logical transaction field a CSV column can be mapped onto.
type Field string

const (
	FieldBookedDate    Field = "booked_date"
	FieldProcessedDate Field = "processed_date"
	FieldAmount        Field = "amount"
	FieldPartner       Field = "partner"
	FieldDescription   Field = "description"
	FieldTargetIBAN    Field = "target_iban"
	FieldSourceIBAN    Field = "source_iban"
)

// requiredFields must be mapped before a row can be converted.
var requiredFields = []Field{FieldBookedDate, FieldAmount, FieldPartner}

var knownFields = map[Field]struct{}{
	FieldBookedDate:    {},
	FieldProcessedDate: {},
	FieldAmount:        {},
	FieldPartner:       {},
	FieldDescription:   {},
	FieldTargetIBAN:    {},
	FieldSourceIBAN:    {},
}

// ColumnMapping associates logical fields with zero-based CSV column indices.
// A nil index means the field is unmapped.
type ColumnMapping map[Field]*int

// ParseColumnMapping converts the wire representation (field name to column
// index, null for unmapped) into a typed mapping, rejecting unknown fields
// and negative indices.
func ParseColumnMapping(raw map[string]*int) (ColumnMapping, error) {
	cm := make(ColumnMapping, len(raw))
	for name, idx := range raw {
		f := Field(name)
		if _, ok := knownFields[f]; !ok {
			return nil, fmt.Errorf("unknown field %q in column mapping", name)
		}
		if idx != nil && *idx < 0 {
			return nil, fmt.Errorf("negative column index for field %q", name)
		}
		cm[f] = idx
	}
	return cm, nil
}

// Validate checks that every required field is mapped.
func (cm ColumnMapping) Validate() error {
	var missing []Field
	for _, f := range requiredFields {
		if idx, ok := cm[f]; !ok || idx == nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingRequiredMapping, missing)
	}
	return nil
}

// Column returns the mapped column index for a field, false when unmapped.
func (cm ColumnMapping) Column(f Field) (int, bool) {
	idx, ok := cm[f]
	if !ok || idx == nil {
		return 0, false
	}
	return *idx, true
}
