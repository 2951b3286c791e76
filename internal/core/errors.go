package core

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateName     = errors.New("name already exists")
	ErrProtected         = errors.New("protected record cannot be modified")
	ErrNoChanges         = errors.New("no changes supplied")
	ErrTooManyItems      = errors.New("too many items in batch")
)

// Application codes carried in the response envelope.
const (
	CodeDuplicateName   = "DUPLICATE_NAME"
	CodeNotFound        = "NOT_FOUND"
	CodeProtectedRecord = "PROTECTED_RECORD"
	CodeValidation      = "VALIDATION"
)

// PostgreSQL SQLSTATE values the store reacts to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// ApplicationCode returns the envelope code for a domain error, or the
// MapError code for anything else.
func ApplicationCode(err error) string {
	var ve *ValidationError
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateName):
		return CodeDuplicateName
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownCollection):
		return CodeNotFound
	case errors.Is(err, ErrProtected):
		return CodeProtectedRecord
	case errors.As(err, &ve), errors.Is(err, ErrNoChanges), errors.Is(err, ErrTooManyItems):
		return CodeValidation
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return CodeDuplicateName
	}
	return MapError(err).Code
}

// userMessage is the text shown for err: domain errors verbatim, everything
// else through MapError.
func userMessage(err error) string {
	var ve *ValidationError
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrProtected), errors.Is(err, ErrUnknownCollection),
		errors.Is(err, ErrNoChanges), errors.Is(err, ErrTooManyItems):
		return err.Error()
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return ErrDuplicateName.Error()
	}
	return MapError(err).Message
}

// UserMessageFor exposes userMessage to transports.
func UserMessageFor(err error) string {
	return userMessage(err)
}

// FieldOf returns the field a validation error refers to.
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
