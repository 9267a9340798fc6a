package auth

import (
	"errors"
	"fmt"
)

// FailureReason classifies why a token was rejected. Reasons are for logs
// and metrics; HTTP callers only ever see an opaque denial.
type FailureReason string

// Verification failure reasons.
const (
	ReasonMalformed            FailureReason = "malformed"
	ReasonAlgorithmMismatch    FailureReason = "algorithm_mismatch"
	ReasonUnknownKey           FailureReason = "unknown_key"
	ReasonBadSignature         FailureReason = "bad_signature"
	ReasonMissingClaim         FailureReason = "missing_claim"
	ReasonExpired              FailureReason = "expired"
	ReasonIssuerMismatch       FailureReason = "issuer_mismatch"
	ReasonAudienceMismatch     FailureReason = "audience_mismatch"
	ReasonKeySourceUnavailable FailureReason = "key_source_unavailable"
)

// Sentinel errors for token verification. Every *VerificationError matches
// exactly one of these through errors.Is.
var (
	ErrMalformed            = errors.New("auth: token malformed")
	ErrAlgorithmMismatch    = errors.New("auth: signing algorithm not allowed")
	ErrUnknownKey           = errors.New("auth: unknown signing key")
	ErrBadSignature         = errors.New("auth: signature verification failed")
	ErrMissingClaim         = errors.New("auth: required claim missing")
	ErrExpired              = errors.New("auth: token expired")
	ErrIssuerMismatch       = errors.New("auth: issuer mismatch")
	ErrAudienceMismatch     = errors.New("auth: audience mismatch")
	ErrKeySourceUnavailable = errors.New("auth: key source unavailable")
)

// Sentinel errors for key resolution and request handling.
var (
	ErrKeyNotFound   = errors.New("auth: signing key not found")
	ErrNoSigningKeys = errors.New("auth: key set has no usable signing keys")
	ErrMissingBearer = errors.New("auth: missing bearer token")
	ErrForbidden     = errors.New("auth: access denied")
)

var reasonErrors = map[FailureReason]error{
	ReasonMalformed:            ErrMalformed,
	ReasonAlgorithmMismatch:    ErrAlgorithmMismatch,
	ReasonUnknownKey:           ErrUnknownKey,
	ReasonBadSignature:         ErrBadSignature,
	ReasonMissingClaim:         ErrMissingClaim,
	ReasonExpired:              ErrExpired,
	ReasonIssuerMismatch:       ErrIssuerMismatch,
	ReasonAudienceMismatch:     ErrAudienceMismatch,
	ReasonKeySourceUnavailable: ErrKeySourceUnavailable,
}

// VerificationError is the Invalid outcome of Verify.
type VerificationError struct {
	// Reason is the failure kind.
	Reason FailureReason

	// Err is the underlying cause, if any.
	Err error
}

func invalid(reason FailureReason, err error) *VerificationError {
	return &VerificationError{Reason: reason, Err: err}
}

// Error returns the error message.
func (e *VerificationError) Error() string {
	msg := "auth: " + string(e.Reason)
	if s, ok := reasonErrors[e.Reason]; ok {
		msg = s.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the reason sentinel and the cause to errors.Is/As.
func (e *VerificationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := reasonErrors[e.Reason]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ReasonOf returns the failure reason carried by err, or "" if err is not
// a verification failure.
func ReasonOf(err error) FailureReason {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}
