// Package transport produces established byte streams for the calling side.
// The multiplexer consumes the result as an opaque net.Conn and never learns
// whether, or how, it was secured.
package transport

import (
	"crypto/tls"
	"net"
	"time"
)

// Dialer dials ordered, reliable byte streams — plain TCP, or wrapped in a
// TLS handshake completed before the connection is handed over.
type Dialer struct {
	Network string        // defaults to "tcp"
	Addr    string        // remote address
	TLS     *tls.Config   // nil means a plain stream
	Timeout time.Duration // connect + handshake deadline; 0 means none
}

// Dial establishes one connection. Its signature matches what client.New
// expects, so a Dialer plugs straight into the connection pool.
func (d *Dialer) Dial() (net.Conn, error) {
	network := d.Network
	if network == "" {
		network = "tcp"
	}
	nd := &net.Dialer{Timeout: d.Timeout}
	if d.TLS != nil {
		return tls.DialWithDialer(nd, network, d.Addr, d.TLS)
	}
	return nd.Dial(network, d.Addr)
}
