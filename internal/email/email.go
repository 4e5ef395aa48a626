package email

import (
	"context"
	"errors"
)

// ErrGatewayUnavailable marks a send failure caused by the gateway itself
// rather than by one recipient. The dispatcher treats it as a total
// failure and aborts the send.
var ErrGatewayUnavailable = errors.New("notification gateway unavailable")

// Message is one rendered outbound email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Gateway is any service that can deliver a single message. It returns
// the gateway-assigned message id. Implementations own per-call timeouts
// via the context; retries are also the implementation's concern.
type Gateway interface {
	SendTemplated(ctx context.Context, msg Message) (string, error)
}
