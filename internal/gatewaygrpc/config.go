package gatewaygrpc

import "time"

// Config controls the gateway gRPC server/client setup.
type Config struct {
	// Network is "unix" (default) or "tcp".
	Network           string
	Address           string
	KeepaliveInterval time.Duration
}

func (c Config) network() string {
	if c.Network == "" {
		return "unix"
	}
	return c.Network
}
