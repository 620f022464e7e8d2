package server

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"

	apperrors "github.com/partnerhub/partnerhub/internal/platform/errors"
	"github.com/partnerhub/partnerhub/internal/platform/timeouts"
	"github.com/partnerhub/partnerhub/internal/services/partners/protocol"
)

const (
	maxDecodeErrorsPerConn = 3

	// eventQueueDepth bounds how many inbound events can wait on the
	// per-connection dispatcher before the transport read loop blocks.
	eventQueueDepth = 32
)

// wsPeer is the mutex-guarded write side of one connection.
type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn}
}

// Send writes one envelope frame. Safe for concurrent callers.
func (p *wsPeer) Send(envelope protocol.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return websocket.JSON.Send(p.conn, envelope)
}

// wsConn carries the state of one live connection through its events.
type wsConn struct {
	deps     Deps
	conn     *websocket.Conn
	peer     *wsPeer
	username string
	rawToken string

	// closed marks the connection fatally terminated by the dispatcher;
	// later events drain without processing.
	closed atomic.Bool
}

// handleWSConn drives one connection through CONNECTING, OPEN and CLOSED.
//
// The transport read loop only decodes frames; every event is handled by a
// single dispatcher goroutine per connection, which preserves per-connection
// FIFO order while keeping slow collaborator calls off the read path.
func handleWSConn(conn *websocket.Conn, deps Deps) {
	defer func() {
		_ = conn.Close()
	}()
	conn.MaxPayloadBytes = protocol.MaxPayloadBytes

	identity, ok := identityFromConn(conn)
	if !ok {
		log.Printf("partners: websocket opened without resolved identity remote=%s", conn.Request().RemoteAddr)
		return
	}

	peer := newWSPeer(conn)
	state := &wsConn{
		deps:     deps,
		conn:     conn,
		peer:     peer,
		username: identity.username,
		rawToken: identity.rawToken,
	}

	openCtx, cancel := eventContext()
	account, err := deps.Accounts.EnsureAccount(openCtx, identity.username)
	cancel()
	if err != nil {
		log.Printf("partners: resolve account user=%q err=%v", identity.username, err)
		_ = peer.Send(protocol.Envelope{Type: protocol.TypeError, Message: "Service temporarily unavailable."})
		return
	}

	if !deps.Registry.Register(identity.username, peer, account) {
		log.Printf("partners: duplicate session rejected user=%q remote=%s", identity.username, conn.Request().RemoteAddr)
		state.sendFailure(apperrors.New(apperrors.CodeSessionDuplicate, "session already registered"))
		return
	}
	defer func() {
		deps.Registry.Deregister(identity.username)
		deps.Limiter.Forget(identity.username)
		if _, err := deps.Validator.Validate(state.rawToken); err != nil {
			log.Printf("partners: token invalid at close user=%q err=%v", identity.username, err)
		}
	}()

	flushCtx, cancel := eventContext()
	deps.Coordinator.FlushPending(flushCtx, identity.username, peer)
	cancel()

	events := make(chan protocol.Envelope, eventQueueDepth)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for envelope := range events {
			state.handleEvent(envelope)
		}
	}()

	state.readLoop(events)
	close(events)
	<-done
}

// readLoop decodes inbound frames until the transport closes or decoding
// fails repeatedly. Decoded envelopes are queued for the dispatcher.
func (c *wsConn) readLoop(events chan<- protocol.Envelope) {
	decodeErrors := 0
	for {
		var envelope protocol.Envelope
		if err := websocket.JSON.Receive(c.conn, &envelope); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				decodeErrors++
				_ = c.peer.Send(protocol.Envelope{Type: protocol.TypeError, Message: "Payload too large."})
				if decodeErrors >= maxDecodeErrorsPerConn {
					return
				}
				continue
			}
			if c.closed.Load() {
				return
			}
			decodeErrors++
			_ = c.peer.Send(protocol.Envelope{Type: protocol.TypeError, Message: "Invalid message payload."})
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0
		events <- envelope
	}
}

// handleEvent processes one inbound envelope in FIFO order.
func (c *wsConn) handleEvent(envelope protocol.Envelope) {
	if c.closed.Load() {
		return
	}

	// A long-lived connection can outlive its token; every event is
	// re-checked instead of trusting the identity resolved at open.
	if _, err := c.deps.Validator.Validate(c.rawToken); err != nil {
		log.Printf("partners: token rejected mid-connection user=%q err=%v", c.username, err)
		_ = c.peer.Send(protocol.Envelope{Type: protocol.TypeError, Message: "Authentication expired."})
		c.closed.Store(true)
		_ = c.conn.Close()
		return
	}

	if !c.deps.Limiter.TryAcquire(c.username) {
		c.sendFailure(apperrors.New(apperrors.CodeRateLimited, "message budget exceeded"))
		return
	}

	if err := protocol.ValidateInbound(envelope); err != nil {
		c.sendFailure(err)
		return
	}

	ctx, cancel := eventContext()
	defer cancel()

	switch envelope.Type {
	case protocol.TypePartnershipRequest:
		if _, err := c.deps.Coordinator.Request(ctx, c.username, envelope.Partner, envelope.Message); err != nil {
			c.sendFailure(err)
		}
	case protocol.TypePartnershipDecline:
		if err := c.deps.Coordinator.Decline(ctx, c.username, envelope.Partner); err != nil {
			c.sendFailure(err)
		}
	case protocol.TypeError, protocol.TypeInfo, protocol.TypeUserInfo:
		_ = c.peer.Send(protocol.Envelope{Type: protocol.TypeError, Message: "Message type is not accepted from clients."})
	}
}

// sendFailure reports a rejected action to the originator. Domain and
// validation errors carry their own user-facing text; collaborator failures
// are logged and surfaced as a generic notice.
func (c *wsConn) sendFailure(err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeStorageUnavailable, apperrors.CodeUnknown, apperrors.CodePartnerInconsistent:
		log.Printf("partners: request failed user=%q err=%v", c.username, err)
		_ = c.peer.Send(protocol.Envelope{Type: protocol.TypeError, Message: "Service temporarily unavailable."})
	default:
		_ = c.peer.Send(protocol.Envelope{Type: protocol.TypeError, Message: userMessage(err)})
	}
}

// userMessage renders a domain error for the wire.
func userMessage(err error) string {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case apperrors.CodeInviteSelf:
			return "You cannot invite yourself."
		case apperrors.CodeInviteDuplicate:
			return "Invitation is already pending."
		case apperrors.CodeAlreadyPartnered:
			return "You are already partners."
		case apperrors.CodePartnerUnknown:
			return "User {" + domainErr.Metadata["Partner"] + "} does not exist."
		case apperrors.CodeMessageTooLong:
			return "Message is too long."
		case apperrors.CodePartnerInvalid:
			return "Partner username is missing or invalid."
		case apperrors.CodeMessageTypeUnknown:
			return "Unknown message type."
		case apperrors.CodeSessionDuplicate:
			return "Already connected."
		case apperrors.CodeRateLimited:
			return "Too many messages. Slow down."
		}
	}
	return "Request rejected."
}

// eventContext scopes one event's collaborator calls. It derives from the
// background context: closing a connection does not cancel in-flight work.
func eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeouts.Collaborator)
}

func identityFromConn(conn *websocket.Conn) (connIdentity, bool) {
	request := conn.Request()
	if request == nil {
		return connIdentity{}, false
	}
	identity, ok := request.Context().Value(wsIdentityContextKey{}).(connIdentity)
	if !ok || identity.username == "" {
		return connIdentity{}, false
	}
	return identity, true
}
