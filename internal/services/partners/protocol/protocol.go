// Package protocol defines the wire envelope exchanged over a partner
// connection and the validation limits applied to inbound frames.
package protocol

import (
	"unicode"
	"unicode/utf8"

	apperrors "github.com/partnerhub/partnerhub/internal/platform/errors"
)

// MessageType enumerates every envelope type the gateway understands.
type MessageType string

const (
	TypeError              MessageType = "ERROR"
	TypeInfo               MessageType = "INFO"
	TypeUserInfo           MessageType = "USER_INFO"
	TypePartnershipRequest MessageType = "PARTNERSHIP_REQUEST"
	TypePartnershipDecline MessageType = "PARTNERSHIP_DECLINE"
)

const (
	// MaxPayloadBytes caps one raw inbound frame before decoding.
	MaxPayloadBytes = 4096

	// MaxMessageRunes caps the free-text message field.
	MaxMessageRunes = 255

	// MaxUsernameRunes caps a username carried in the partner field.
	MaxUsernameRunes = 64
)

// Envelope is the single frame shape for both directions. Message and
// Partner are omitted from output when empty.
type Envelope struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message,omitempty"`
	Partner string      `json:"partner,omitempty"`
}

// Known reports whether t is one of the finite message types.
func Known(t MessageType) bool {
	switch t {
	case TypeError, TypeInfo, TypeUserInfo, TypePartnershipRequest, TypePartnershipDecline:
		return true
	}
	return false
}

// ValidUsername reports whether name is a well-formed account username:
// non-blank, alphanumeric only, at most MaxUsernameRunes runes.
func ValidUsername(name string) bool {
	if name == "" || utf8.RuneCountInString(name) > MaxUsernameRunes {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ValidateInbound checks an inbound envelope against the wire limits. The
// returned error is a domain error suitable for echoing back to the sender.
func ValidateInbound(envelope Envelope) error {
	if !Known(envelope.Type) {
		return apperrors.New(apperrors.CodeMessageTypeUnknown, "unknown message type")
	}
	if utf8.RuneCountInString(envelope.Message) > MaxMessageRunes {
		return apperrors.New(apperrors.CodeMessageTooLong, "message exceeds maximum length")
	}
	switch envelope.Type {
	case TypePartnershipRequest, TypePartnershipDecline:
		if !ValidUsername(envelope.Partner) {
			return apperrors.New(apperrors.CodePartnerInvalid, "partner username is missing or malformed")
		}
	}
	return nil
}
