//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package gateway

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"
)

// listenReusePort falls back to a plain listener; only one worker can bind.
func listenReusePort(ctx context.Context, addr string) (net.Listener, error) {
	log.Warn().Msg("SO_REUSEPORT unavailable on this platform, run with cluster.size=1")
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
