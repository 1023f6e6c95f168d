package domain

import "errors"

// Infrastructure sentinels shared by stores and caches.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
)

// ErrorKind is the category of a market failure.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindForbidden           ErrorKind = "forbidden"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindInvalidState        ErrorKind = "invalid_state"
	KindInsufficientValue   ErrorKind = "insufficient_value"
	KindResourceUnavailable ErrorKind = "resource_unavailable"
	KindPaymentFailed       ErrorKind = "payment_failed"
	KindInternal            ErrorKind = "internal"
)

// Error is a market failure with a kind, a stable code and a readable reason.
type Error struct {
	Kind   ErrorKind
	Code   string
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Is matches on code so wrapped copies still compare equal to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind ErrorKind, code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

var (
	ErrConsignmentNotFound = newError(KindNotFound, "consignment_not_found", "Consignment does not exist")
	ErrAuctionNotFound     = newError(KindNotFound, "auction_not_found", "Auction does not exist")
	ErrSaleNotFound        = newError(KindNotFound, "sale_not_found", "Sale does not exist")

	ErrForbidden          = newError(KindForbidden, "forbidden", "Caller lacks the required role")
	ErrNotConsignor       = newError(KindForbidden, "not_consignor", "Caller is not the consignor")
	ErrNotStaker          = newError(KindForbidden, "not_staker", "Buyer is not a staker")
	ErrNotVipStaker       = newError(KindForbidden, "not_vip_staker", "Buyer is not a VIP staker")
	ErrContractsForbidden = newError(KindForbidden, "contracts_forbidden", "Contracts may not bid")

	ErrInvalidInput     = newError(KindInvalidInput, "invalid_input", "Invalid input")
	ErrZeroSupply       = newError(KindInvalidInput, "zero_supply", "Supply must be non-zero")
	ErrInvalidStartTime = newError(KindInvalidInput, "invalid_start_time", "Time runs backward?")
	ErrInvalidPercent   = newError(KindInvalidInput, "invalid_percentage", "Percentage must be between 0 and 10000")
	ErrInvalidAmount    = newError(KindInvalidInput, "invalid_amount", "Amount must be non-zero and within the per transaction cap")

	ErrAlreadyHandled = newError(KindInvalidState, "already_handled", "Consignment already has a market handler")
	ErrAlreadySettled = newError(KindInvalidState, "already_settled", "Already settled")
	ErrNotStarted     = newError(KindInvalidState, "not_started", "Auction hasn't started")
	ErrTooEarly       = newError(KindInvalidState, "too_early", "Auction end time not yet reached")
	ErrAuctionEnded   = newError(KindInvalidState, "auction_ended", "Auction timer has elapsed")
	ErrNoBids         = newError(KindInvalidState, "no_bids", "No bids have been placed")
	ErrOverRelease    = newError(KindInvalidState, "over_release", "Release exceeds unreleased supply")
	ErrReleased       = newError(KindInvalidState, "consignment_released", "Consignment already released")
	ErrWrongHandler   = newError(KindInvalidState, "wrong_handler", "Consignment is handled by another market")
	ErrSaleNotStarted = newError(KindInvalidState, "sale_not_started", "Sale hasn't started")
	ErrNotSoldOut     = newError(KindInvalidState, "not_sold_out", "Sale has unreleased supply")
	ErrNotRunning     = newError(KindInvalidState, "not_running", "Sale has not had any buyers")

	ErrBelowReserve = newError(KindInsufficientValue, "below_reserve", "Bid below reserve price")
	ErrBidTooSmall  = newError(KindInsufficientValue, "bid_too_small", "Bid too small")
	ErrWrongPayment = newError(KindInsufficientValue, "wrong_payment", "Value doesn't cover price")
	ErrNoFunds      = newError(KindInsufficientValue, "insufficient_funds", "Payer cannot cover the value")

	ErrNotApproved            = newError(KindResourceUnavailable, "not_approved", "Not approved to transfer seller's tokens")
	ErrInsufficientBalance    = newError(KindResourceUnavailable, "insufficient_balance", "Seller has insufficient balance of token")
	ErrExternalTokensDisabled = newError(KindResourceUnavailable, "external_tokens_disabled", "Listing external tokens is not currently enabled")

	ErrPaymentFailed = newError(KindPaymentFailed, "payment_failed", "Payment failed")
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// WithReason returns a copy of sentinel carrying a more specific reason. The
// copy still matches sentinel with errors.Is.
func WithReason(sentinel *Error, reason string) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Reason: reason}
}
