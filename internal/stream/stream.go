// Package stream is the command input stream: a bounded line buffer fed by
// the serial port and the MQTT command topic, drained one line at a time by
// the foreground loop.
package stream

import (
	"bytes"
	"log"
	"strings"
	"sync"

	"github.com/sweeney/auxio/internal/realtime"
)

// DefaultSize is the buffer capacity in bytes.
const DefaultSize = 1024

// Realtime command lines. They act immediately and never enter the buffer.
const (
	CmdAbort  = "!abort"
	CmdStatus = "!status"
	CmdHold   = "!hold"
	CmdResume = "!resume"
)

// Buffer is a bounded line buffer. Free space is counted in bytes, newline
// included, the way a serial receive buffer counts characters. A partial
// line counts against free space as soon as it arrives.
type Buffer struct {
	rt   *realtime.Runtime
	size int

	mu        sync.Mutex
	lines     []string
	used      int
	partial   []byte
	overflows uint64
}

// NewBuffer creates a Buffer of size bytes.
func NewBuffer(rt *realtime.Runtime, size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{rt: rt, size: size}
}

// Write implements io.Writer. Bytes are accumulated until a newline
// completes a line. Carriage returns are ignored.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest := p
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			b.partial = append(b.partial, rest...)
			if b.used+len(b.partial) > b.size {
				b.overflows++
				log.Printf("stream: line too long, discarded %d bytes", len(b.partial))
				b.partial = b.partial[:0]
			}
			break
		}
		b.partial = append(b.partial, rest[:i]...)
		line := string(bytes.TrimRight(b.partial, "\r"))
		b.partial = b.partial[:0]
		b.pushLocked(line)
		rest = rest[i+1:]
	}
	return len(p), nil
}

// PushLine adds a complete line. Reports false if it was dropped because
// the buffer is full.
func (b *Buffer) PushLine(line string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushLocked(strings.TrimRight(line, "\r\n"))
}

func (b *Buffer) pushLocked(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if b.realtime(line) {
		return true
	}
	n := len(line) + 1
	if b.used+n > b.size {
		b.overflows++
		log.Printf("stream: buffer full, dropped %q", line)
		return false
	}
	b.lines = append(b.lines, line)
	b.used += n
	return true
}

func (b *Buffer) realtime(line string) bool {
	switch line {
	case CmdAbort:
		b.rt.Abort()
	case CmdStatus:
		b.rt.SetExecFlag(realtime.ExecStatusReport)
	case CmdHold:
		b.rt.SetExecFlag(realtime.ExecFeedHold)
	case CmdResume:
		b.rt.SetExecFlag(realtime.ExecCycleStart)
	default:
		return false
	}
	return true
}

// Pop removes and returns the oldest buffered line.
func (b *Buffer) Pop() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return "", false
	}
	line := b.lines[0]
	b.lines[0] = ""
	b.lines = b.lines[1:]
	b.used -= len(line) + 1
	return line, true
}

// RxFree returns the free space in bytes.
func (b *Buffer) RxFree() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size - b.used - len(b.partial)
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Overflows returns how many lines were dropped.
func (b *Buffer) Overflows() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflows
}
