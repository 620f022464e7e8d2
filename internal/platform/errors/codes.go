// Package errors provides structured error handling for partnerhub services.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Token errors
	CodeTokenMissing   Code = "TOKEN_MISSING"
	CodeTokenMalformed Code = "TOKEN_MALFORMED"
	CodeTokenExpired   Code = "TOKEN_EXPIRED"

	// Session errors
	CodeSessionDuplicate Code = "SESSION_DUPLICATE"

	// Envelope validation errors
	CodeMessageTypeUnknown Code = "MESSAGE_TYPE_UNKNOWN"
	CodeMessageTooLong     Code = "MESSAGE_TOO_LONG"
	CodePartnerInvalid     Code = "PARTNER_INVALID"

	// Partnership errors
	CodeInviteSelf          Code = "INVITE_SELF"
	CodeInviteDuplicate     Code = "INVITE_DUPLICATE"
	CodeAlreadyPartnered    Code = "ALREADY_PARTNERED"
	CodePartnerUnknown      Code = "PARTNER_UNKNOWN"
	CodePartnerInconsistent Code = "PARTNER_SET_INCONSISTENT"

	// Admission errors
	CodeRateLimited Code = "RATE_LIMITED"

	// Collaborator errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)
