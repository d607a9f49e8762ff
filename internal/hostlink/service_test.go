package hostlink

import (
	"context"
	"io"
	"testing"
	"time"

	"skypointer/internal/controller"
)

type pipePort struct {
	io.Reader
	io.Writer
	closed bool
}

func (p *pipePort) Close() error {
	p.closed = true
	return nil
}

func startWithFakePort(t *testing.T) (*Service, io.WriteCloser, chan controller.Command) {
	t.Helper()
	pr, pw := io.Pipe()
	port := &pipePort{Reader: pr, Writer: io.Discard}

	oldOpen := openPort
	openPort = func(device string, baud int) (io.ReadWriteCloser, error) { return port, nil }
	t.Cleanup(func() { openPort = oldOpen })

	s := New(Config{Device: "/dev/fake"})
	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := make(chan controller.Command, 8)
	apply := func(cmd controller.Command) error {
		got <- cmd
		return nil
	}
	if err := s.Start(context.Background(), apply); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Close)
	return s, pw, got
}

func TestService_ParsesInboundCommands(t *testing.T) {
	s, pw, got := startWithFakePort(t)

	if _, err := io.WriteString(pw, "set_find_star 10 20 1\ncancel_find_star\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	for i, want := range []string{"StartGuidance", "CancelGuidance"} {
		select {
		case cmd := <-got:
			switch want {
			case "StartGuidance":
				if _, ok := cmd.(controller.StartGuidance); !ok {
					t.Fatalf("cmd %d=%T want %s", i, cmd, want)
				}
			case "CancelGuidance":
				if _, ok := cmd.(controller.CancelGuidance); !ok {
					t.Fatalf("cmd %d=%T want %s", i, cmd, want)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for command %d", i)
		}
	}

	snap := s.Snapshot()
	if snap.Commands != 2 || snap.ParseErrors != 0 {
		t.Fatalf("snapshot=%+v want 2 commands, 0 parse errors", snap)
	}
}

func TestService_SkipsGarbageAndBlankLines(t *testing.T) {
	s, pw, got := startWithFakePort(t)

	if _, err := io.WriteString(pw, "\n\nnot_a_command 1\ncancel_find_star\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cmd := <-got:
		if _, ok := cmd.(controller.CancelGuidance); !ok {
			t.Fatalf("cmd=%T want CancelGuidance", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for command")
	}

	snap := s.Snapshot()
	if snap.ParseErrors != 1 {
		t.Fatalf("parse_errors=%d want 1", snap.ParseErrors)
	}
	if snap.Commands != 1 {
		t.Fatalf("commands=%d want 1", snap.Commands)
	}
}

func TestService_OpenRequiresDevice(t *testing.T) {
	s := New(Config{})
	if err := s.Open(); err == nil {
		t.Fatalf("expected error without device")
	}
}

func TestService_StartRequiresOpen(t *testing.T) {
	s := New(Config{Device: "/dev/fake"})
	if err := s.Start(context.Background(), func(controller.Command) error { return nil }); err == nil {
		t.Fatalf("expected error before Open")
	}
}
