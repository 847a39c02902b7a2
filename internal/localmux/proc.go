package localmux

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/kballard/go-shellquote"
)

// process is one pty-backed shell owned by the local backend.
type process struct {
	id   string
	cmd  *exec.Cmd
	file *os.File
	ring *outputRing

	endOnce sync.Once
	done    chan struct{}
}

// spawnProcess starts command on a fresh pty and begins capturing its
// output into a bounded ring.
func spawnProcess(id, command string, historyBytes int, cols, rows uint16) (*process, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("localmux: parse command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, errors.New("localmux: command is required")
	}
	cmd := exec.Command(words[0], words[1:]...)
	cmd.Env = os.Environ()
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}
	file, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("localmux: start %q: %w", command, err)
	}

	p := &process{
		id:   id,
		cmd:  cmd,
		file: file,
		ring: newOutputRing(historyBytes),
		done: make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

func (p *process) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.file.Read(buf)
		if n > 0 {
			p.ring.append(buf[:n])
		}
		if err != nil {
			// EIO from the pty master means the child side is gone.
			p.endOnce.Do(func() { close(p.done) })
			_ = p.cmd.Wait()
			return
		}
	}
}

func (p *process) write(data []byte) error {
	if p == nil || p.file == nil {
		return errors.New("localmux: process is closed")
	}
	_, err := p.file.Write(data)
	return err
}

func (p *process) resize(cols, rows int) error {
	if p == nil || p.file == nil {
		return errors.New("localmux: process is closed")
	}
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("localmux: invalid size %dx%d", cols, rows)
	}
	return pty.Setsize(p.file, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// terminate kills the child and closes the pty. Safe to call more than
// once; the read loop exits on the pty close.
func (p *process) terminate() {
	if p == nil {
		return
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	if p.file != nil {
		_ = p.file.Close()
	}
}
