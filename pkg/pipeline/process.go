package pipeline

import (
	"bytes"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// processWaitDelay bounds how long Close waits for pipe copying goroutines
// after the processes were killed.
const processWaitDelay = 2 * time.Second

// ProcessReader is the stdout of the last process in a subprocess chain.
// Close kills every process in the chain and releases upstream inputs.
type ProcessReader struct {
	io.ReadCloser
	cmds     []*exec.Cmd
	upstream []io.Closer
	once     sync.Once
}

// NewProcessReader wraps stdout. cmds must already be started.
func NewProcessReader(stdout io.ReadCloser, cmds []*exec.Cmd, upstream ...io.Closer) *ProcessReader {
	return &ProcessReader{ReadCloser: stdout, cmds: cmds, upstream: upstream}
}

// Close kills the chain and reaps the processes.
func (p *ProcessReader) Close() error {
	var err error
	p.once.Do(func() {
		for _, cmd := range p.cmds {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
		for _, c := range p.upstream {
			_ = c.Close()
		}
		err = p.ReadCloser.Close()
		for _, cmd := range p.cmds {
			_ = cmd.Wait()
		}
	})
	return err
}

// StartPiped starts cmd with its stdout piped and its stderr forwarded to the
// logger at debug level.
func StartPiped(cmd *exec.Cmd, logger Logger, name string) (io.ReadCloser, error) {
	cmd.Stderr = &stderrLogger{logger: logger.With(String("process", name))}
	cmd.WaitDelay = processWaitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return stdout, nil
}

// stderrLogger forwards complete lines of subprocess stderr to a logger.
type stderrLogger struct {
	logger Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// partial line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			w.logger.Debug(line)
		}
	}
	return len(p), nil
}
