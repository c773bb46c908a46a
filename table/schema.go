package table

import (
	"fmt"

	"github.com/TotoCodeFR/DaaD/errors"
)

// Schema describes a table's column set and its designated primary key.
// Schemas are immutable after construction; validation happens once in
// NewSchema.
type Schema struct {
	Columns    []string
	PrimaryKey string
}

// NewSchema validates and builds a schema. The column list must be non-empty
// with no duplicates, and the primary key must name one of the columns.
func NewSchema(columns []string, primaryKey string) (Schema, error) {
	if len(columns) == 0 {
		return Schema{}, errors.WrapInvalid(errors.ErrInvalidSchema, "table", "NewSchema", "schema has no columns")
	}
	if primaryKey == "" {
		return Schema{}, errors.WrapInvalid(errors.ErrInvalidSchema, "table", "NewSchema", "schema has no primary key")
	}

	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if col == "" {
			return Schema{}, errors.WrapInvalid(errors.ErrInvalidSchema, "table", "NewSchema", "schema has an empty column name")
		}
		if _, dup := seen[col]; dup {
			return Schema{}, errors.WrapInvalid(errors.ErrInvalidSchema, "table", "NewSchema",
				fmt.Sprintf("duplicate column %q", col))
		}
		seen[col] = struct{}{}
	}

	if _, ok := seen[primaryKey]; !ok {
		return Schema{}, errors.WrapInvalid(errors.ErrInvalidSchema, "table", "NewSchema",
			fmt.Sprintf("primary key %q is not a column", primaryKey))
	}

	cols := make([]string, len(columns))
	copy(cols, columns)
	return Schema{Columns: cols, PrimaryKey: primaryKey}, nil
}

// Record is one row: a mapping from column name to value. Identity is the
// primary-key value, which must be a non-empty string.
type Record map[string]any

// identity extracts the primary-key value from rec and validates it.
func (s Schema) identity(rec Record) (string, error) {
	raw, ok := rec[s.PrimaryKey]
	if !ok {
		return "", errors.WrapInvalid(errors.ErrMissingPrimaryKey, "table", "identity",
			fmt.Sprintf("record has no %q field", s.PrimaryKey))
	}
	pk, ok := raw.(string)
	if !ok || pk == "" {
		return "", errors.WrapInvalid(errors.ErrMissingPrimaryKey, "table", "identity",
			fmt.Sprintf("primary key %q must be a non-empty string", s.PrimaryKey))
	}
	return pk, nil
}
