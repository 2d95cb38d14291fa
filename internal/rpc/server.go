package rpc

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"net"

	"github.com/google/uuid"
)

// ServeConn reads newline-delimited JSON Requests from conn and writes a
// newline-delimited JSON Response for each, until the client disconnects
// or a line fails to parse as valid JSON (at which point the connection
// is closed — a malformed line is treated as a protocol violation, not a
// single failed command).
func (d *Dispatcher) ServeConn(conn net.Conn) {
	connID := uuid.NewString()[:8]
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("[rpc:%s] malformed request: %v", connID, err)
			enc.Encode(fail(err))
			return
		}

		log.Printf("[rpc:%s] %s", connID, req.Cmd)
		resp := d.Handle(req)
		if err := enc.Encode(resp); err != nil {
			log.Printf("[rpc:%s] write response: %v", connID, err)
			return
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		log.Printf("[rpc:%s] connection error: %v", connID, err)
	}
}

// ServeListener accepts connections from ln forever, handling each on
// its own goroutine, until ln.Accept returns an error (typically because
// the listener was closed during shutdown).
func (d *Dispatcher) ServeListener(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("[rpc] listener closed: %v", err)
			return
		}
		go d.ServeConn(conn)
	}
}
