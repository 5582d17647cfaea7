package discovery

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.bug.st/serial/enumerator"

	"arksync/backend/pkg/serialport"
)

func TestScan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ports []*enumerator.PortDetails
		want  []serialport.Port
	}{
		{
			name: "ft232r and ft231x",
			ports: []*enumerator.PortDetails{
				{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "DP065KS3"},
				{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6015", SerialNumber: "DK0HFBFB"},
			},
			want: []serialport.Port{
				{Name: "/dev/ttyUSB0", SerialNumber: "DP065KS3"},
				{Name: "/dev/ttyUSB1", SerialNumber: "DK0HFBFB"},
			},
		},
		{
			name: "windows port name",
			ports: []*enumerator.PortDetails{
				{Name: "COM3", IsUSB: true, VID: "0403", PID: "6015", SerialNumber: "A1"},
			},
			want: []serialport.Port{{Name: "COM3", SerialNumber: "A1"}},
		},
		{
			name: "other vendor and product",
			ports: []*enumerator.PortDetails{
				{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", SerialNumber: "X"},
				{Name: "/dev/ttyUSB2", IsUSB: true, VID: "0403", PID: "6010", SerialNumber: "Y"},
			},
		},
		{
			name: "no serial number",
			ports: []*enumerator.PortDetails{
				{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
			},
		},
		{
			name: "not usb",
			ports: []*enumerator.PortDetails{
				{Name: "/dev/ttyS0", VID: "0403", PID: "6001", SerialNumber: "Z"},
			},
		},
		{
			name: "garbage ids",
			ports: []*enumerator.PortDetails{
				{Name: "/dev/ttyUSB0", IsUSB: true, VID: "zz", PID: "6001", SerialNumber: "Z"},
				nil,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewScanner(slog.New(slog.NewTextHandler(io.Discard, nil)), func() ([]*enumerator.PortDetails, error) {
				return tt.ports, nil
			}, DefaultFilter())

			got, err := s.Scan()
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("Scan() = %v, want %v", got, tt.want)
			}

			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Scan()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScanEnumerateError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := NewScanner(slog.New(slog.NewTextHandler(io.Discard, nil)), func() ([]*enumerator.PortDetails, error) {
		return nil, boom
	}, DefaultFilter())

	if _, err := s.Scan(); !errors.Is(err, boom) {
		t.Errorf("Scan() error = %v, want %v", err, boom)
	}
}

func TestDiscoveryError(t *testing.T) {
	t.Parallel()

	err := error(&DiscoveryError{Port: "/dev/ttyUSB0", Err: ErrNoSerialNumber})
	if !errors.Is(err, ErrNoSerialNumber) {
		t.Error("DiscoveryError should unwrap to its cause")
	}

	if err.Error() != "discovery /dev/ttyUSB0: port has no serial number" {
		t.Errorf("Error() = %q", err.Error())
	}
}
