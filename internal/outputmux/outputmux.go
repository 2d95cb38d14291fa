// Package outputmux consumes a supervised child's merged stdout+stderr
// stream. Long-running services are streamed line-by-line into the
// daemon's own log under a "[<name>]" tag; oneshots are instead captured
// into a capped in-memory buffer so a later oneshotStatus RPC call can
// retrieve what the process printed.
package outputmux

import (
	"bufio"
	"encoding/base64"
	"io"
	"log"
	"sync"
)

// maxOneshotBuffer bounds how much output a oneshot's capture buffer will
// retain; output beyond this is silently dropped rather than growing the
// daemon's memory usage without bound for a runaway process.
const maxOneshotBuffer = 16 * 1024 * 1024 // 16 MiB

// StreamToLog reads lines from r and logs each one prefixed with the
// service's name, until r hits EOF (the child's write end of the pipe
// closed, meaning the process exited or closed its own handles). It is
// meant to be run in its own goroutine for the lifetime of a supervised
// service.
func StreamToLog(name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Printf("[%s] %s", name, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[%s] output stream ended: %v", name, err)
	}
}

// OneshotCapture accumulates a oneshot's merged output up to
// maxOneshotBuffer and exposes it, base64-encoded, for the oneshotStatus
// RPC command. Reads happen on a background goroutine exactly like
// StreamToLog; Snapshot is safe to call concurrently with that goroutine.
type OneshotCapture struct {
	mu       sync.Mutex
	buf      []byte
	truncated bool
}

// NewOneshotCapture starts draining r in a background goroutine and
// returns the capture handle immediately.
func NewOneshotCapture(r io.Reader) *OneshotCapture {
	c := &OneshotCapture{}
	go c.drain(r)
	return c
}

func (c *OneshotCapture) drain(r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.append(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (c *OneshotCapture) append(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.truncated {
		return
	}
	remaining := maxOneshotBuffer - len(c.buf)
	if remaining <= 0 {
		c.truncated = true
		return
	}
	if len(p) > remaining {
		p = p[:remaining]
		c.truncated = true
	}
	c.buf = append(c.buf, p...)
}

// Snapshot returns the captured output so far, base64-encoded for
// transport over the JSON RPC wire, plus whether the buffer hit its cap
// and dropped trailing output.
func (c *OneshotCapture) Snapshot() (encoded string, truncated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return base64.StdEncoding.EncodeToString(c.buf), c.truncated
}
