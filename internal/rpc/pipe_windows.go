//go:build windows

package rpc

import (
	"log"
	"net"

	"github.com/Microsoft/go-winio"
)

// PipeName is the single named pipe LittleHydra listens on for local RPC
// clients, the Go analogue of the Rust daemon's
// tokio::net::windows::named_pipe server path.
const PipeName = `\\.\pipe\little_hydra_rpc`

// ServePipe opens the control pipe and serves connections one at a time:
// accept, run the full Create->Wait-Connect->Serve->Close cycle to
// completion, then accept the next client. Only one RPC client is ever
// connected at once, matching the daemon's single-operator control
// surface — there's no need for the connection concurrency the TCP
// listener allows for remote callers.
func (d *Dispatcher) ServePipe(stop <-chan struct{}) error {
	ln, err := winio.ListenPipe(PipeName, &winio.PipeConfig{
		InputBufferSize:  64 * 1024,
		OutputBufferSize: 64 * 1024,
	})
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-stop
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("[rpc:pipe] closed: %v", err)
			return nil
		}
		d.serveOneAtATime(conn)
	}
}

func (d *Dispatcher) serveOneAtATime(conn net.Conn) {
	d.ServeConn(conn)
}
