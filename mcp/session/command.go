package session

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// DefaultInterpreters maps a server script extension to the command running it
var DefaultInterpreters = map[string]string{
	".py": "python",
	".js": "node",
}

// ResolveCommand returns the command line starting the server.
// A script with a known extension is started by its interpreter,
// anything else is split on white space and executed directly,
// for example "uvx mcp-server-time".
func ResolveCommand(identity string, interpreters map[string]string) ([]string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("server path is empty")
	}
	if interpreters == nil {
		interpreters = DefaultInterpreters
	}

	ext := strings.ToLower(filepath.Ext(identity))
	if interp, ok := interpreters[ext]; ok && (isFile(identity) || !strings.ContainsAny(identity, " \t")) {
		parts := strings.Fields(interp)
		if len(parts) == 0 {
			return nil, errors.Newf("empty interpreter for %q", ext)
		}
		return append(parts, identity), nil
	}
	return strings.Fields(identity), nil
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func buildCommand(identity string, interpreters map[string]string) (*exec.Cmd, error) {
	args, err := ResolveCommand(identity, interpreters)
	if err != nil {
		return nil, err
	}
	// The process outlives the connect request, it is stopped by Close.
	// #nosec G204 -- the server path is provided by the operator
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = &logWriter{server: identity}
	return cmd, nil
}

// logWriter forwards the server stderr lines to the logger
type logWriter struct {
	server string
	lock   sync.Mutex
	buf    bytes.Buffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			logger.KV(xlog.DEBUG, "server", w.server, "stderr", line)
		}
	}
	return len(p), nil
}
