// Package logsink wires the daemon's stdlib logger to its file and
// optional network destinations. Neither sink carries any
// process-supervision logic; they are thin io.Writer adapters composed
// via io.MultiWriter, the same pattern osiriscare/agent's main.go uses
// for its own log-folder + log-host setup.
package logsink

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

// OpenFile opens (creating if necessary) a dated log file under dir,
// named littlehydra-YYYYMMDD.log, for append.
func OpenFile(dir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log folder %s: %w", dir, err)
	}
	name := fmt.Sprintf("littlehydra-%s.log", time.Now().Format("20060102"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

// DialHost opens a best-effort TCP connection to addr for mirroring log
// lines to a remote collector. A connection failure is returned to the
// caller so startup can decide whether to treat it as fatal; once
// connected, a write failure is swallowed by the caller's MultiWriter
// construction the same way a second, unreachable sink would be.
func DialHost(addr string) (io.WriteCloser, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial log host %s: %w", addr, err)
	}
	return conn, nil
}
