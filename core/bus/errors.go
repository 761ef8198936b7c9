package bus

import "errors"

var (
	// Transport errors
	ErrTransportClosed = errors.New("transport closed")
	ErrConnLost        = errors.New("connection lost")

	// Envelope errors
	ErrNoMessageType   = errors.New("envelope has no message type")
	ErrReplyAndRequest = errors.New("envelope cannot be both reply and request")
)
