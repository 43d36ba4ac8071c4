// Package params implements the parameter server/client protocol: a
// network-addressable wrapper around the weight store, with HTTP and raw
// socket transports behind a common factory.
package params

import (
	"fmt"

	"github.com/skyhookml/distrain/distrain"
)

// Server exposes a Store to remote workers. Start binds the endpoint and
// begins accepting requests; Stop releases it. Stop is safe to call after a
// failed Start and safe to call twice.
type Server interface {
	Start() error
	Stop() error
	// Addr returns the bound address ("host:port") once started.
	Addr() string
}

// Client is the worker-side stub. Calls block until the server responds;
// there is no retry, a failed call fails the calling partition task.
type Client interface {
	SendDelta(delta distrain.WeightSet) error
	GetParameters() (distrain.WeightSet, error)
}

const (
	TransportHTTP   = "http"
	TransportSocket = "socket"
)

// NewServer creates a server for the given transport, listening on the
// given port (0 picks a free port).
func NewServer(transport string, port int, store *Store) (Server, error) {
	switch transport {
	case TransportHTTP:
		return &httpServer{store: store, port: port}, nil
	case TransportSocket:
		return &socketServer{store: store, port: port}, nil
	default:
		return nil, distrain.ConfigError{Reason: fmt.Sprintf("unknown parameter server transport %q", transport)}
	}
}

// NewClient creates a client for the given transport talking to addr.
func NewClient(transport string, addr string) (Client, error) {
	switch transport {
	case TransportHTTP:
		return &httpClient{baseURL: "http://" + addr}, nil
	case TransportSocket:
		return &socketClient{addr: addr}, nil
	default:
		return nil, distrain.ConfigError{Reason: fmt.Sprintf("unknown parameter server transport %q", transport)}
	}
}
