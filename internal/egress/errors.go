package egress

import "errors"

// Proxy errors. Status.Err maps a check result to one of them.
var (
	// ErrInvalidProxyAddress is returned when the proxy address is not
	// host:port, optionally with a socks5:// scheme and user:pass@.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected [socks5://][user:pass@]host:port")

	// ErrProxyNotSOCKS5 is returned when the address answers but does not
	// speak SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy does not speak SOCKS5")

	// ErrProxyAuth is returned when the proxy rejects the credentials or
	// offers no method we support.
	ErrProxyAuth = errors.New("proxy authentication failed")

	// ErrProxyCannotConnect is returned when no TCP connection to the
	// proxy could be made.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy handshake times out.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrTorNotRunning is returned when a client is requested from an
	// embedded daemon that has not been started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// Status is the result of Proxy.Check.
type Status int

const (
	// StatusOK: the proxy completed the handshake and answered CONNECT.
	StatusOK Status = iota

	// StatusWrongType: the peer is not a SOCKS5 proxy.
	StatusWrongType

	// StatusAuthFailed: the proxy refused our authentication.
	StatusAuthFailed

	// StatusCannotConnect: no TCP connection.
	StatusCannotConnect

	// StatusTimeout: the handshake did not finish in time.
	StatusTimeout
)

// String returns a human-readable status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWrongType:
		return "wrong type (not SOCKS5)"
	case StatusAuthFailed:
		return "authentication failed"
	case StatusCannotConnect:
		return "cannot connect"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err returns the error for this status, or nil if OK.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusWrongType:
		return ErrProxyNotSOCKS5
	case StatusAuthFailed:
		return ErrProxyAuth
	case StatusCannotConnect:
		return ErrProxyCannotConnect
	case StatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
