package egress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// checkTimeout bounds Proxy.Check. It only verifies the handshake, not a
// full request.
const checkTimeout = 5 * time.Second

// Proxy is a SOCKS5 egress.
type Proxy struct {
	address string
	auth    *proxy.Auth
	dialer  proxy.Dialer
}

// NewProxy parses address and builds a SOCKS5 dialer for it. Accepted
// forms are "host:port", "user:pass@host:port" and either with a
// "socks5://" or "socks5h://" scheme. Nothing is dialled.
func NewProxy(address string) (*Proxy, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return nil, ErrInvalidProxyAddress
	}
	if !strings.Contains(raw, "://") {
		raw = "socks5://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "socks5" && u.Scheme != "socks5h") {
		return nil, ErrInvalidProxyAddress
	}
	if u.Path != "" && u.Path != "/" {
		return nil, ErrInvalidProxyAddress
	}
	if !isValidHostPort(u.Host) {
		return nil, ErrInvalidProxyAddress
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}

	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}
	return &Proxy{address: u.Host, auth: auth, dialer: dialer}, nil
}

func isValidHostPort(hostport string) bool {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// Address returns host:port of the proxy.
func (p *Proxy) Address() string {
	return p.address
}

// URL returns the proxy as a socks5:// URL without credentials, the form
// browsers accept in --proxy-server.
func (p *Proxy) URL() string {
	return "socks5://" + p.address
}

// HasAuth reports whether the proxy was configured with credentials.
func (p *Proxy) HasAuth() bool {
	return p.auth != nil
}

// DialContext connects to address through the proxy.
func (p *Proxy) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := p.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := p.dialer.Dial(network, address)
		ch <- dialResult{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Transport returns an http.Transport that dials through the proxy. It is
// meant to be wrapped by the caller's round trippers.
func (p *Proxy) Transport() *http.Transport {
	return &http.Transport{
		DialContext:         p.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}
}

// SOCKS5 protocol constants.
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthPassword  = 0x02
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeFQDN  = 0x03
	socks5PasswordVer   = 0x01
	socks5PasswordOK    = 0x00
	defaultProbeAddress = "example.com:443"
)

// Check performs a SOCKS5 handshake and a CONNECT to probe (host:port;
// empty uses example.com:443). Any CONNECT reply, success or failure,
// proves the peer is a working SOCKS5 proxy.
func (p *Proxy) Check(ctx context.Context, probe string) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return StatusTimeout
		}
		return StatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return StatusCannotConnect
	}

	methods := []byte{socks5AuthNone}
	if p.auth != nil {
		methods = []byte{socks5AuthPassword}
	}
	greeting := append([]byte{socks5Version, byte(len(methods))}, methods...)
	if _, err := conn.Write(greeting); err != nil {
		return StatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readFailure(err)
	}
	if resp[0] != socks5Version {
		return StatusWrongType
	}

	switch resp[1] {
	case socks5AuthNone:
	case socks5AuthPassword:
		if p.auth == nil {
			return StatusAuthFailed
		}
		if status := p.authenticate(conn); status != StatusOK {
			return status
		}
	case socks5AuthNoAccept:
		return StatusAuthFailed
	default:
		return StatusWrongType
	}

	if probe == "" {
		probe = defaultProbeAddress
	}
	host, portStr, err := net.SplitHostPort(probe)
	if err != nil {
		host, portStr = probe, "443"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || len(host) > 255 {
		return StatusWrongType
	}

	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeFQDN, byte(len(host))}
	req = append(req, host...)
	req = append(req, byte(port>>8), byte(port&0xFF))
	if _, err := conn.Write(req); err != nil {
		return StatusCannotConnect
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return readFailure(err)
	}
	if reply[0] != socks5Version {
		return StatusWrongType
	}
	return StatusOK
}

// authenticate runs the RFC 1929 username/password subnegotiation.
func (p *Proxy) authenticate(conn net.Conn) Status {
	user, pass := p.auth.User, p.auth.Password
	if len(user) > 255 || len(pass) > 255 {
		return StatusAuthFailed
	}
	msg := []byte{socks5PasswordVer, byte(len(user))}
	msg = append(msg, user...)
	msg = append(msg, byte(len(pass)))
	msg = append(msg, pass...)
	if _, err := conn.Write(msg); err != nil {
		return StatusCannotConnect
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readFailure(err)
	}
	if resp[1] != socks5PasswordOK {
		return StatusAuthFailed
	}
	return StatusOK
}

func readFailure(err error) Status {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return StatusTimeout
	}
	return StatusWrongType
}
