package core

// # Error Codes Reference
//
// Technical errors that are not domain errors are mapped to a user-facing
// message with a code that support staff can look up in the logs.
//
//	DB001-DB007    database constraints, connectivity and contention
//	VAL001-VAL004  value validation
//	COL001         unknown collection
//	BAT001-BAT002  batch mutations
//	REQ001-REQ002  request cancellation and deadlines
//	RATE001        request throttling
//	ERR000         fallback for anything unrecognized
//
// Domain errors (duplicate name, not found, protected record, validation)
// carry their own envelope codes; see ApplicationCode.

import (
	"fmt"
	"strings"
)

// UserMessage is a user-friendly rendering of a technical error.
type UserMessage struct {
	Message string // What went wrong
	Action  string // What the user can do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is matched in order against the lowercased error text.
// More specific patterns must come first.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this value already exists",
			Action:  "Choose a different name",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Choose a different value",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "The record is still referenced by other records",
			Action:  "Remove the referencing records first",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again with fewer items",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format",
			Action:  "Use YYYY-MM-DD",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format",
			Action:  "Use a plain decimal number",
			Code:    "VAL002",
		},
	},
	{
		pattern: "is required",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Fill in all required fields",
			Code:    "VAL003",
		},
	},
	{
		pattern: "must be one of",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Pick one of the listed options",
			Code:    "VAL004",
		},
	},
	{
		pattern: "unknown collection",
		msg: UserMessage{
			Message: "The collection does not exist",
			Action:  "Check the collection name",
			Code:    "COL001",
		},
	},
	{
		pattern: "too many concurrent batch",
		msg: UserMessage{
			Message: "System busy with other batch operations",
			Action:  "Please wait a moment and try again",
			Code:    "BAT001",
		},
	},
	{
		pattern: "too many items",
		msg: UserMessage{
			Message: "Too many items in one request",
			Action:  "Split the operation into smaller batches",
			Code:    "BAT002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Matching is case-insensitive; the first matching pattern wins.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
