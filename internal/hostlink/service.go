package hostlink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"skypointer/internal/controller"
)

// openPort is injectable for tests.
var openPort = func(device string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

type Config struct {
	Device string
	Baud   int
}

type Snapshot struct {
	Connected   bool      `json:"connected"`
	Commands    uint64    `json:"commands"`
	ParseErrors uint64    `json:"parse_errors"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"last_update_utc,omitempty"`
}

// Service owns the serial host link: inbound lines become controller
// commands, outbound telemetry goes through Sink.
type Service struct {
	cfg Config

	port io.ReadWriteCloser
	sink *Sink

	mu   sync.RWMutex
	snap Snapshot

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config) *Service {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	return &Service{cfg: cfg, stopCh: make(chan struct{})}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Open opens the serial port. Separate from Start so the telemetry sink
// exists before the controller is built.
func (s *Service) Open() error {
	if s == nil {
		return fmt.Errorf("hostlink: service is nil")
	}
	if s.cfg.Device == "" {
		return fmt.Errorf("hostlink: device is required")
	}
	port, err := openPort(s.cfg.Device, s.cfg.Baud)
	if err != nil {
		return fmt.Errorf("hostlink: open %s: %w", s.cfg.Device, err)
	}
	s.port = port
	s.sink = NewSink(port)
	s.mu.Lock()
	s.snap.Connected = true
	s.snap.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

// Sink returns the telemetry sink. Valid after Open.
func (s *Service) Sink() *Sink {
	if s == nil {
		return nil
	}
	return s.sink
}

// Start runs the inbound read loop, handing parsed commands to apply.
// Parse failures are counted and skipped, never fatal.
func (s *Service) Start(ctx context.Context, apply func(controller.Command) error) error {
	if s == nil {
		return fmt.Errorf("hostlink: service is nil")
	}
	if s.port == nil {
		return fmt.Errorf("hostlink: not open")
	}
	if apply == nil {
		return fmt.Errorf("hostlink: apply is nil")
	}
	go s.readLoop(ctx, apply)
	return nil
}

func (s *Service) readLoop(ctx context.Context, apply func(controller.Command) error) {
	scan := bufio.NewScanner(s.port)
	for scan.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		line := scan.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := ParseCommand(line)
		if err != nil {
			s.mu.Lock()
			s.snap.ParseErrors++
			s.snap.LastError = err.Error()
			s.snap.UpdatedAt = time.Now().UTC()
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		s.snap.Commands++
		s.snap.UpdatedAt = time.Now().UTC()
		s.mu.Unlock()

		if err := apply(cmd); err != nil {
			s.mu.Lock()
			s.snap.LastError = err.Error()
			s.mu.Unlock()
		}
	}

	if err := scan.Err(); err != nil {
		s.mu.Lock()
		s.snap.Connected = false
		s.snap.LastError = err.Error()
		s.snap.UpdatedAt = time.Now().UTC()
		s.mu.Unlock()
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.port != nil {
			_ = s.port.Close()
		}
	})
}
