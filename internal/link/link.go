package link

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"go.bug.st/serial"
)

// Kind is the transport behind a link address.
type Kind string

const (
	KindStdio  Kind = "stdio"
	KindTCP    Kind = "tcp"
	KindSerial Kind = "serial"
)

// Role decides which end of a TCP link listens.
type Role int

const (
	// RoleDevice is the acquisition side: it listens on TCP and may use stdio.
	RoleDevice Role = iota
	// RoleHost is the operator side: it dials TCP.
	RoleHost
)

// Address is a parsed link address.
type Address struct {
	Kind   Kind
	Target string
}

// ParseAddress understands "stdio", "tcp://host:port", "serial://<path>" and
// bare device paths such as /dev/ttyUSB0 or COM6.
func ParseAddress(address string) (Address, error) {
	address = strings.TrimSpace(address)
	switch {
	case address == "":
		return Address{}, fmt.Errorf("empty link address")
	case address == "stdio" || address == "-":
		return Address{Kind: KindStdio}, nil
	case strings.HasPrefix(address, "tcp://"):
		target := strings.TrimPrefix(address, "tcp://")
		if _, _, err := net.SplitHostPort(target); err != nil {
			return Address{}, fmt.Errorf("invalid tcp link address %q: %w", address, err)
		}
		return Address{Kind: KindTCP, Target: target}, nil
	case strings.HasPrefix(address, "serial://"):
		target := strings.TrimPrefix(address, "serial://")
		if target == "" {
			return Address{}, fmt.Errorf("serial link address %q has no device path", address)
		}
		return Address{Kind: KindSerial, Target: target}, nil
	case strings.HasPrefix(address, "/dev/") || strings.HasPrefix(strings.ToUpper(address), "COM"):
		return Address{Kind: KindSerial, Target: address}, nil
	default:
		return Address{}, fmt.Errorf("unsupported link address %q (use stdio, tcp://host:port or serial://path)", address)
	}
}

// Open connects the link. For a device on TCP it blocks until one host
// connects or ctx is cancelled.
func Open(ctx context.Context, address string, baud int, role Role) (io.ReadWriteCloser, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	switch addr.Kind {
	case KindStdio:
		if role != RoleDevice {
			return nil, fmt.Errorf("stdio link is only available on the device side")
		}
		return stdio{in: os.Stdin, out: os.Stdout}, nil
	case KindTCP:
		if role == RoleDevice {
			return acceptOne(ctx, addr.Target)
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr.Target)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", addr.Target, err)
		}
		return conn, nil
	case KindSerial:
		return openSerial(addr.Target, baud)
	default:
		return nil, fmt.Errorf("unsupported link kind: %s", addr.Kind)
	}
}

func acceptOne(ctx context.Context, target string) (io.ReadWriteCloser, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", target, err)
	}
	defer ln.Close()

	slog.Info("Waiting for host connection", "address", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to accept host connection: %w", err)
	}

	slog.Info("Host connected", "remote", conn.RemoteAddr().String())
	return conn, nil
}

func openSerial(path string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		slog.Debug("Could not reset serial input buffer", "port", path, "error", err)
	}
	slog.Info("Serial link opened", "port", path, "baud", baud)
	return port, nil
}

// ListSerialPorts returns the serial ports visible to the OS.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

type stdio struct {
	in  io.Reader
	out io.Writer
}

func (s stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.out.Write(p) }

// Close leaves the process's standard streams open.
func (s stdio) Close() error { return nil }
