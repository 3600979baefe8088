package db

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies store failures the commit repair loop cares about.
// Everything else stays KindOther and is reported as-is.
type Kind int

const (
	KindOther Kind = iota
	// KindDuplicateKey is a unique-constraint violation; Field/Value carry
	// the conflicting column and value when they could be extracted.
	KindDuplicateKey
	// KindUnknownColumn means the payload referenced a column the table does
	// not have (schema drift); Column carries its name.
	KindUnknownColumn
	// KindConflictTargetMissing means an ON CONFLICT target has no backing
	// unique constraint, i.e. upsert is not supported on this column.
	KindConflictTargetMissing
)

// StoreError wraps a database failure with its classified kind so callers
// can branch on behavior instead of sniffing message strings.
type StoreError struct {
	Kind   Kind
	Column string // unknown-column name
	Field  string // duplicate-key column
	Value  string // duplicate-key value
	Err    error
}

func (e *StoreError) Error() string {
	switch e.Kind {
	case KindDuplicateKey:
		return fmt.Sprintf("duplicate key (%s)=(%s): %v", e.Field, e.Value, e.Err)
	case KindUnknownColumn:
		return fmt.Sprintf("unknown column %q: %v", e.Column, e.Err)
	case KindConflictTargetMissing:
		return fmt.Sprintf("upsert unsupported: %v", e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *StoreError) Unwrap() error { return e.Err }

// Postgres error codes; see pgconn.PgError.
const (
	codeUniqueViolation       = "23505"
	codeUndefinedColumn       = "42703"
	codeInvalidConflictTarget = "42P10"
)

// Classify inspects err and returns a typed StoreError. When the error is a
// pgconn.PgError the SQLSTATE decides the kind; otherwise the message text
// is matched as a fallback, kept here so string sniffing never leaks into
// callers.
func Classify(err error) *StoreError {
	if err == nil {
		return nil
	}

	se := &StoreError{Kind: KindOther, Err: err}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			se.Kind = KindDuplicateKey
			se.Field, se.Value = ParseDuplicateDetail(pgErr.Detail)
		case codeUndefinedColumn:
			se.Kind = KindUnknownColumn
			se.Column = ParseUnknownColumn(pgErr.Message)
		case codeInvalidConflictTarget:
			se.Kind = KindConflictTargetMissing
		}
		return se
	}

	msg := err.Error()
	if field, value := ParseDuplicateDetail(msg); field != "" {
		se.Kind = KindDuplicateKey
		se.Field, se.Value = field, value
		return se
	}
	if col := ParseUnknownColumn(msg); col != "" {
		se.Kind = KindUnknownColumn
		se.Column = col
		return se
	}
	return se
}

var (
	duplicateDetailPattern = regexp.MustCompile(`\(([^)=]+)\)=\(([^)]*)\)`)
	unknownColumnPattern   = regexp.MustCompile(`column "([^"]+)" (?:of relation "[^"]+" )?does not exist`)
)

// ParseDuplicateDetail extracts the column and value from a unique-violation
// detail such as `Key (codigo_produto)=(000176) already exists.`.
func ParseDuplicateDetail(detail string) (field, value string) {
	m := duplicateDetailPattern.FindStringSubmatch(detail)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// ParseUnknownColumn extracts the offending column name from an
// undefined-column message.
func ParseUnknownColumn(message string) string {
	m := unknownColumnPattern.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return m[1]
}
