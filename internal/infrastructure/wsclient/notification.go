package wsclient

import (
	"fmt"
	"strings"
)

// Notification is a decoded notification envelope.
//
// The wire layout is a header section and a body separated by a blank line.
// The first header line is the acknowledgment token (may be absent on
// non-persistent streams); the remaining lines are routing headers. The
// first routing header has the form "/{tenant}/{channel}..." and carries
// the tenant discriminator.
type Notification struct {
	// AckToken must be echoed back verbatim on the same session before the
	// message counts as delivered. Empty when the message needs no ack.
	AckToken string

	// Headers are the routing headers, ack token excluded.
	Headers []string

	// Message is the raw JSON payload body.
	Message string
}

// ParseNotification decodes a raw websocket text message into a Notification.
func ParseNotification(data string) (Notification, error) {
	sep := strings.Index(data, "\n\n")
	if sep < 0 {
		return Notification{}, fmt.Errorf("%w: missing header/body separator", ErrMalformedMessage)
	}

	headers := strings.Split(data[:sep], "\n")
	if len(headers) == 0 || headers[0] == "" {
		return Notification{}, fmt.Errorf("%w: empty header section", ErrMalformedMessage)
	}

	n := Notification{Message: data[sep+2:]}
	if strings.HasPrefix(headers[0], "/") {
		// No ack token; every line is a routing header.
		n.Headers = headers
	} else {
		n.AckToken = headers[0]
		n.Headers = headers[1:]
	}

	if len(n.Headers) == 0 {
		return Notification{}, fmt.Errorf("%w: no routing headers", ErrMalformedMessage)
	}
	return n, nil
}

// TenantID extracts the tenant discriminator from the first routing header.
func (n Notification) TenantID() (string, error) {
	if len(n.Headers) == 0 {
		return "", fmt.Errorf("%w: no routing headers", ErrMalformedMessage)
	}
	header := n.Headers[0]
	if !strings.HasPrefix(header, "/") {
		return "", fmt.Errorf("%w: routing header %q does not start with '/'", ErrMalformedMessage, header)
	}
	rest := header[1:]
	end := strings.Index(rest, "/")
	if end <= 0 {
		return "", fmt.Errorf("%w: routing header %q has no tenant segment", ErrMalformedMessage, header)
	}
	return rest[:end], nil
}
