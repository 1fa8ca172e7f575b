package board

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// DefaultBaudRate is the co-processor UART speed.
const DefaultBaudRate = 115200

// Serial is a Link over a serial port.
type Serial struct {
	conn io.ReadWriteCloser

	mu       sync.Mutex
	light    latest
	distance latest
	lastRx   time.Time
	parseErr int
	closed   bool

	writeMu sync.Mutex

	done chan struct{}
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Open opens the co-processor port and starts reading samples.
func Open(port string, baudRate int) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	conn, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}

	return newSerial(conn), nil
}

// newSerial wraps an open connection. It is separate from Open so tests can
// supply a pipe in place of a port.
func newSerial(conn io.ReadWriteCloser) *Serial {
	s := &Serial{
		conn: conn,
		done: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// ReadLight returns the newest light sample not yet consumed.
func (s *Serial) ReadLight() (uint16, logic.SensorStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, st := s.light.take()
	return uint16(v), st
}

// ReadDistance returns the newest distance sample not yet consumed.
func (s *Serial) ReadDistance() (uint32, logic.SensorStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.distance.take()
}

// SetDuty sends the LED duty cycle.
func (s *Serial) SetDuty(percent uint8) error {
	return s.write(FormatDuty(percent))
}

// SetEchoTimeout sends the ultrasonic echo timeout.
func (s *Serial) SetEchoTimeout(us uint32) error {
	return s.write(FormatEchoTimeout(us))
}

// LastReceived returns when the last valid line arrived, or zero.
func (s *Serial) LastReceived() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRx
}

// ParseErrors returns how many lines failed to parse.
func (s *Serial) ParseErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parseErr
}

// Done is closed when the read loop exits.
func (s *Serial) Done() <-chan struct{} {
	return s.done
}

// Close closes the port and waits for the read loop to finish.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	<-s.done
	if err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}
	return nil
}

func (s *Serial) write(cmd string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(s.conn, cmd); err != nil {
		return fmt.Errorf("write %q: %w", strings.TrimSpace(cmd), err)
	}
	return nil
}

func (s *Serial) readLoop() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := ParseLine(line)
		if err != nil {
			s.mu.Lock()
			s.parseErr++
			s.mu.Unlock()
			log.Printf("board: failed to parse line %q: %v", line, err)
			continue
		}
		s.apply(msg, time.Now())
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !s.isClosed() {
		log.Printf("board: read error: %v", err)
	}
}

func (s *Serial) apply(msg Message, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRx = now
	switch msg.Kind {
	case KindLight:
		s.light.set(msg.Value)
	case KindDistance:
		s.distance.set(msg.Value)
	case KindError:
		if msg.Channel == KindLight {
			s.light.fail()
		} else {
			s.distance.fail()
		}
	}
}

func (s *Serial) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
