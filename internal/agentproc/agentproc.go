// Package agentproc implements the concrete engine.AgentProvider that
// invokes an external CLI coding agent under a PTY, so the agent sees
// a terminal and line-buffers its output for live REPL tailing.
package agentproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/applog"
	"github.com/re-cinq/aidp-loop/internal/engine"
)

// Sink receives a copy of every line the agent writes, for live
// tailing by the REPL. Typically workloop.State.AppendOutput.
type Sink func(line string)

// Provider is a PTY-backed engine.AgentProvider. One Provider can back
// several named sub-agents; Command/Args are resolved per call from
// opts.Provider against the commands map.
type Provider struct {
	commands map[string][]string // provider name -> {command, args...}
	logDir   string
	sink     Sink
	log      applog.Logger
}

// New builds a Provider. commands maps a provider name (as named in
// aidp.yml's providers section) to its argv; logDir is where each
// call's full transcript is written.
func New(commands map[string][]string, logDir string, sink Sink, log applog.Logger) *Provider {
	if log == nil {
		log = applog.Discard{}
	}
	if sink == nil {
		sink = func(string) {}
	}
	return &Provider{commands: commands, logDir: logDir, sink: sink, log: log}
}

// Execute runs the named provider's command against prompt in
// workingDir, honoring ctx cancellation by killing the process group.
func (p *Provider) Execute(ctx context.Context, prompt, workingDir string, opts engine.AgentOptions) (engine.AgentResult, error) {
	argv, ok := p.commands[opts.Provider]
	if !ok || len(argv) == 0 {
		return engine.AgentResult{}, &aidperr.AgentCallFailure{Class: "ConfigError", Message: fmt.Sprintf("unknown provider %q", opts.Provider)}
	}

	contextFile := filepath.Join(workingDir, ".aidp-context")
	if err := os.WriteFile(contextFile, []byte(prompt), 0o644); err != nil {
		return engine.AgentResult{}, &aidperr.AgentCallFailure{Class: "IOError", Message: err.Error()}
	}
	defer os.Remove(contextFile)

	args := append(append([]string(nil), argv[1:]...), contextFile)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Dir = workingDir
	cmd.SysProcAttr = setpgid()

	ptmx, pts, err := pty.Open()
	if err != nil {
		return engine.AgentResult{}, &aidperr.AgentCallFailure{Class: "PTYError", Message: err.Error()}
	}
	defer ptmx.Close()

	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = pts
	cmd.Stderr = pts

	if err := cmd.Start(); err != nil {
		pts.Close()
		return engine.AgentResult{}, &aidperr.AgentCallFailure{Class: "StartError", Message: err.Error()}
	}
	pts.Close()

	go func() {
		<-ctx.Done()
		killProcessGroup(cmd)
	}()

	var transcript strings.Builder
	logFile, logErr := p.openLog()
	if logErr != nil {
		p.log.Warn("agent log open failed", "err", logErr)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if err := p.streamOutput(ptmx, &transcript, logFile); err != nil {
		return engine.AgentResult{}, &aidperr.AgentCallFailure{Class: "StreamError", Message: err.Error()}
	}

	waitErr := cmd.Wait()
	output := transcript.String()
	if waitErr != nil {
		if ctx.Err() != nil {
			return engine.AgentResult{Status: engine.AgentError, Output: output, Message: "cancelled"}, nil
		}
		return engine.AgentResult{Status: engine.AgentError, Output: output, Message: waitErr.Error()}, nil
	}
	return engine.AgentResult{Status: engine.AgentCompleted, Output: output}, nil
}

// streamOutput copies ptmx to both the transcript builder and the
// sink/log, line by line, ignoring the EIO the kernel raises when the
// child closes its end of the pty.
func (p *Provider) streamOutput(r io.Reader, transcript *strings.Builder, logFile *os.File) error {
	var writers []io.Writer
	writers = append(writers, transcript)
	if logFile != nil {
		writers = append(writers, logFile)
	}
	w := io.MultiWriter(writers...)

	buf := make([]byte, 4096)
	var pending strings.Builder
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			pending.Write(buf[:n])
			p.flushLines(&pending)
		}
		if err != nil {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) && pathErr.Err == syscall.EIO {
				return nil
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (p *Provider) flushLines(pending *strings.Builder) {
	text := pending.String()
	idx := strings.LastIndexByte(text, '\n')
	if idx < 0 {
		return
	}
	for _, line := range strings.Split(text[:idx], "\n") {
		p.sink(line)
	}
	pending.Reset()
	pending.WriteString(text[idx+1:])
}

var logSeq struct {
	mu  sync.Mutex
	seq int
}

func (p *Provider) openLog() (*os.File, error) {
	if p.logDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(p.logDir, 0o755); err != nil {
		return nil, err
	}
	logSeq.mu.Lock()
	logSeq.seq++
	n := logSeq.seq
	logSeq.mu.Unlock()
	path := filepath.Join(p.logDir, fmt.Sprintf("agent-%04d.log", n))
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}
