// Package source runs a status program and exposes its output as a stream.
//
// Status programs such as i3status switch to block buffering when their standard output
// is not a terminal, which delays every status line by kilobytes. The program is
// therefore started on a pseudo-terminal. The terminal is put into raw mode so that the
// bytes arrive exactly as written, without newline translation.
package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Source is a running status program
type Source struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

// Start runs command with sh -c. The program's standard input and output are the
// pseudo-terminal, its standard error is inherited.
func Start(command string) (*Source, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open pty: %w", err)
	}
	defer func() { _ = tty.Close() }()

	if _, err := term.MakeRaw(int(tty.Fd())); err != nil {
		_ = ptmx.Close()
		return nil, fmt.Errorf("failed to set pty to raw mode: %w", err)
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		_ = ptmx.Close()
		return nil, fmt.Errorf("failed to start status command: %w", err)
	}
	slog.Info("Started status command", "command", command, "pid", cmd.Process.Pid)

	return &Source{
		cmd:  cmd,
		ptmx: ptmx,
	}, nil
}

// Read reads the program's output. Once the program has exited and its output is
// drained, Read returns io.EOF.
func (s *Source) Read(p []byte) (int, error) {
	n, err := s.ptmx.Read(p)
	if err != nil && errors.Is(err, syscall.EIO) {
		// Linux reports a hung up pty with EIO
		return n, io.EOF
	}
	return n, err
}

// Wait waits for the program to exit
func (s *Source) Wait() error {
	return s.cmd.Wait()
}

// Stop kills the program and everything it started in its session. Read returns io.EOF
// once the remaining output is drained.
func (s *Source) Stop() error {
	// Setsid made the program a process group leader
	if err := syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to stop status command: %w", err)
	}
	return nil
}

// Close stops the program if it is still running and releases the pty
func (s *Source) Close() error {
	if s.cmd.ProcessState == nil {
		_ = s.Stop()
		_ = s.cmd.Wait()
	}
	return s.ptmx.Close()
}

// PID returns the process id of the program
func (s *Source) PID() int {
	return s.cmd.Process.Pid
}
