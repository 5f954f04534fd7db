package server

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/v22/activation"
)

// listen prefers a socket passed by systemd (LISTEN_FDS) and falls back to
// a TCP listener on addr.
func listen(addr string) (net.Listener, bool, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, false, fmt.Errorf("systemd socket activation: %w", err)
	}
	for _, ln := range listeners {
		if ln != nil {
			return ln, true, nil
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, false, nil
}
