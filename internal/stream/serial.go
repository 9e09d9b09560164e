package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig configures OpenSerial.
type SerialConfig struct {
	Name string
	Baud int
}

// SerialPort is an open serial device. Read timeouts surface as zero-byte
// reads instead of io.EOF so Pump keeps going.
type SerialPort struct {
	port *serial.Port
}

// OpenSerial opens a serial device with a short read timeout.
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Name, err)
	}
	return &SerialPort{port: p}, nil
}

func (s *SerialPort) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (s *SerialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close closes the device.
func (s *SerialPort) Close() error {
	return s.port.Close()
}

// Pump copies r into b until ctx is cancelled, r reaches EOF or a read fails.
func Pump(ctx context.Context, r io.Reader, b *Buffer) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Printf("stream: read error: %v", err)
			return err
		}
	}
}
