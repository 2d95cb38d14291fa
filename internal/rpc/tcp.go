package rpc

import (
	"fmt"
	"net"
)

// ServeTCP binds 0.0.0.0:port and serves RPC connections concurrently,
// one goroutine per client, until stop is closed. This is the optional
// remote-control surface; the named pipe remains the primary local one.
func (d *Dispatcher) ServeTCP(port uint16, stop <-chan struct{}) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}

	go func() {
		<-stop
		ln.Close()
	}()

	d.ServeListener(ln)
	return nil
}
