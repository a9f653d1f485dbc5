// Package apperr defines the typed errors returned by the BookWise services
// and how each kind maps onto an HTTP status.
package apperr

import (
	"errors"
	"net/http"
)

// Kind groups errors by how callers should react to them.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Conflict
	KindValidation
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case RateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a domain error safe to show to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so a copy produced by Validation or WithMessage still
// compares equal to its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg}
}

var (
	ErrBookNotFound           = &Error{Kind: NotFound, Code: "book_not_found", Message: "Book not found"}
	ErrUserNotFound           = &Error{Kind: NotFound, Code: "user_not_found", Message: "User not found"}
	ErrRecordNotFound         = &Error{Kind: NotFound, Code: "record_not_found", Message: "Borrow record not found"}
	ErrReceiptNotFound        = &Error{Kind: NotFound, Code: "receipt_not_found", Message: "Receipt not found"}
	ErrAlreadyBorrowed        = &Error{Kind: Conflict, Code: "already_borrowed", Message: "You have already borrowed this book"}
	ErrAlreadyReturned        = &Error{Kind: Conflict, Code: "already_returned", Message: "Book has already been returned"}
	ErrOutOfStock             = &Error{Kind: Conflict, Code: "out_of_stock", Message: "Book is not available for borrowing"}
	ErrAccountNotApproved     = &Error{Kind: Conflict, Code: "account_not_approved", Message: "Account has not been approved"}
	ErrAccountAlreadyReviewed = &Error{Kind: Conflict, Code: "account_already_reviewed", Message: "Account request has already been reviewed"}
	ErrBookOnLoan             = &Error{Kind: Conflict, Code: "book_on_loan", Message: "Book has copies on loan"}
	ErrInvalidTransition      = &Error{Kind: Conflict, Code: "invalid_transition", Message: "Status change is not allowed"}
	ErrEmailTaken             = &Error{Kind: Conflict, Code: "email_taken", Message: "An account with this email already exists"}
	ErrRateLimited            = &Error{Kind: RateLimited, Code: "rate_limited", Message: "Too many requests, please try again later"}
)

const validationCode = "validation"

// Validation builds a field-level error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: validationCode, Message: msg}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps err onto the status code returned to clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Conflict, KindValidation:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message a client may see. Internal errors are
// replaced with a generic text.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "Internal server error"
}
