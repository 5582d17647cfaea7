package ezo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"arksync/backend/pkg/serialport"
)

// scripted answers each command with the next queued response.
type scripted struct {
	responses []string
	errs      []error
	sent      []string
	closed    bool
}

func (s *scripted) SendCommand(cmd string) (string, error) {
	i := len(s.sent)
	s.sent = append(s.sent, cmd)

	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}

	if i < len(s.responses) {
		return s.responses[i], nil
	}

	return "", &serialport.TransportError{Op: "read", Port: "fake", Err: serialport.ErrTimeout}
}

func (s *scripted) Close() error {
	s.closed = true
	return nil
}

func newTestDevice(responses ...string) (*Device, *scripted) {
	ex := &scripted{responses: responses}
	d := NewDevice(slog.New(slog.NewTextHandler(io.Discard, nil)), ex)
	d.RetryDelay = time.Millisecond

	return d, ex
}

func TestDeviceInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		wantType string
		wantFW   float64
	}{
		{name: "rtd", response: "?I,RTD,1.0", wantType: "RTD", wantFW: 1.0},
		{name: "ph", response: "?I,pH,2.16", wantType: "pH", wantFW: 2.16},
		{name: "extra fields", response: "?I,EC,2.12,extra", wantType: "EC", wantFW: 2.12},
		{name: "firmware not numeric", response: "?I,ORP,beta", wantType: "ORP", wantFW: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, ex := newTestDevice(tt.response)

			info, err := d.DeviceInfo(context.Background())
			if err != nil {
				t.Fatalf("DeviceInfo() error = %v", err)
			}

			if info.DeviceType != tt.wantType || info.FirmwareVersion != tt.wantFW {
				t.Errorf("DeviceInfo() = %+v, want %s %v", info, tt.wantType, tt.wantFW)
			}

			if len(ex.sent) != 1 || ex.sent[0] != CmdInfo {
				t.Errorf("sent = %v, want one %q", ex.sent, CmdInfo)
			}
		})
	}
}

func TestDeviceInfoRetries(t *testing.T) {
	t.Parallel()

	t.Run("fails after three mismatches", func(t *testing.T) {
		t.Parallel()

		d, ex := newTestDevice("23.104", "*OK", "?I,RTD")

		_, err := d.DeviceInfo(context.Background())
		if !errors.Is(err, ErrUnexpectedResponse) {
			t.Fatalf("DeviceInfo() error = %v, want ErrUnexpectedResponse", err)
		}

		var pe *ProtocolError
		if !errors.As(err, &pe) || pe.Command != CmdInfo || pe.Response != "?I,RTD" {
			t.Errorf("error = %#v", err)
		}

		if len(ex.sent) != InfoAttempts {
			t.Errorf("attempts = %d, want %d", len(ex.sent), InfoAttempts)
		}
	})

	t.Run("second attempt succeeds", func(t *testing.T) {
		t.Parallel()

		d, ex := newTestDevice("23.104", "?I,RTD,2.01", "?I,RTD,9.99")

		info, err := d.DeviceInfo(context.Background())
		if err != nil {
			t.Fatalf("DeviceInfo() error = %v", err)
		}

		if info.FirmwareVersion != 2.01 {
			t.Errorf("FirmwareVersion = %v, want 2.01", info.FirmwareVersion)
		}

		if len(ex.sent) != 2 {
			t.Errorf("attempts = %d, want 2", len(ex.sent))
		}
	})

	t.Run("transport errors are not retried", func(t *testing.T) {
		t.Parallel()

		d, ex := newTestDevice()

		_, err := d.DeviceInfo(context.Background())
		if !errors.Is(err, serialport.ErrTimeout) {
			t.Fatalf("DeviceInfo() error = %v, want ErrTimeout", err)
		}

		if len(ex.sent) != 1 {
			t.Errorf("attempts = %d, want 1", len(ex.sent))
		}
	})

	t.Run("cancelled between attempts", func(t *testing.T) {
		t.Parallel()

		d, _ := newTestDevice("23.104", "?I,RTD,1.0")
		d.RetryDelay = time.Hour

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		if _, err := d.DeviceInfo(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("DeviceInfo() error = %v, want deadline exceeded", err)
		}
	})
}

func TestReadTemperature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     float64
		wantErr  bool
	}{
		{name: "plain", response: "14.50", want: 14.50},
		{name: "negative", response: "-3.250", want: -3.25},
		{name: "padded", response: " 21.3 ", want: 21.3},
		{name: "not a number", response: "*ER", wantErr: true},
		{name: "empty", response: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _ := newTestDevice(tt.response)

			got, err := d.ReadTemperature(context.Background())
			if tt.wantErr {
				var pe *ProtocolError
				if !errors.As(err, &pe) {
					t.Fatalf("ReadTemperature() error = %v, want ProtocolError", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("ReadTemperature() error = %v", err)
			}

			if got != tt.want {
				t.Errorf("ReadTemperature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     float64
		wantErr  bool
	}{
		{name: "single output", response: "7.012", want: 7.012},
		{name: "ec with all outputs", response: "1413,707,0.71,1.000", want: 1413},
		{name: "error", response: "*ER", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _ := newTestDevice(tt.response)

			got, err := d.Read(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Read() error = %v, wantErr %v", err, tt.wantErr)
			}

			if got != tt.want {
				t.Errorf("Read() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestReadTemperatureOverSerial runs the command layer over the real framing code.
func TestReadTemperatureOverSerial(t *testing.T) {
	t.Parallel()

	dev := &loopback{reply: []byte("14.50\r")}
	conn := serialport.NewConn(serialport.Port{Name: "/dev/ttyUSB0", SerialNumber: "DP065KS3"}, dev)
	d := NewDevice(slog.New(slog.NewTextHandler(io.Discard, nil)), conn)

	got, err := d.ReadTemperature(context.Background())
	if err != nil {
		t.Fatalf("ReadTemperature() error = %v", err)
	}

	if got != 14.50 {
		t.Errorf("ReadTemperature() = %v, want 14.50", got)
	}

	if dev.written.String() != "R\r" {
		t.Errorf("written = %q, want %q", dev.written.String(), "R\r")
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		response string
		want     StatusCode
		wantErr  bool
	}{
		{response: "?STATUS,P", want: StatusPoweredOn},
		{response: "?STATUS,S", want: StatusSoftwareReset},
		{response: "?STATUS,B", want: StatusBrownOut},
		{response: "?STATUS,W", want: StatusWatchdog},
		{response: "?STATUS,P,5.038", want: StatusPoweredOn},
		{response: "?STATUS,U", want: StatusUnknown},
		{response: "?STATUS,X", want: StatusUnknown},
		{response: "?STATUS,", want: StatusUnknown},
		{response: "STATUS,P", wantErr: true},
		{response: "14.50", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			t.Parallel()

			d, _ := newTestDevice(tt.response)

			got, err := d.CheckStatus(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrUnexpectedResponse) {
					t.Fatalf("CheckStatus() error = %v, want ErrUnexpectedResponse", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("CheckStatus() error = %v", err)
			}

			if got != tt.want {
				t.Errorf("CheckStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCalibration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		response string
		want     uint8
		wantErr  bool
	}{
		{response: "?Cal,2", want: 2},
		{response: "?Cal,0", want: 0},
		{response: "?Cal, 1 ", want: 1},
		{response: "?Cal,abc", want: 0},
		{response: "?Cal,999", want: 0},
		{response: "*ER", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			t.Parallel()

			d, _ := newTestDevice(tt.response)

			got, err := d.GetCalibration(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrUnexpectedResponse) {
					t.Fatalf("GetCalibration() error = %v, want ErrUnexpectedResponse", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("GetCalibration() error = %v", err)
			}

			if got.CalibrationPoints != tt.want {
				t.Errorf("GetCalibration() = %d, want %d", got.CalibrationPoints, tt.want)
			}
		})
	}
}

func TestSleepAndRaw(t *testing.T) {
	t.Parallel()

	d, ex := newTestDevice("*SL", "?L,1")

	if err := d.Sleep(context.Background()); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}

	got, err := d.SendRaw(context.Background(), "L,?")
	if err != nil {
		t.Fatalf("SendRaw() error = %v", err)
	}

	if got != "?L,1" {
		t.Errorf("SendRaw() = %q", got)
	}

	if ex.sent[0] != CmdSleep || ex.sent[1] != "L,?" {
		t.Errorf("sent = %v", ex.sent)
	}

	if err := d.Sleep(context.Background()); !errors.Is(err, serialport.ErrTimeout) {
		t.Errorf("Sleep() without response error = %v, want ErrTimeout", err)
	}
}

func TestObserver(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice("?STATUS,P")

	var (
		cmds []string
		errs []error
	)

	d.Observe = func(cmd string, _ time.Duration, err error) {
		cmds = append(cmds, cmd)
		errs = append(errs, err)
	}

	_, _ = d.CheckStatus(context.Background())
	_, _ = d.ReadTemperature(context.Background())

	if len(cmds) != 2 || cmds[0] != CmdStatus || cmds[1] != CmdRead {
		t.Fatalf("observed = %v", cmds)
	}

	if errs[0] != nil || errs[1] == nil {
		t.Errorf("observed errors = %v", errs)
	}
}

type loopback struct {
	reply   []byte
	rx      bytes.Buffer
	written bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error) {
	if l.rx.Len() == 0 {
		return 0, nil
	}

	return l.rx.Read(p)
}

func (l *loopback) Write(p []byte) (int, error) {
	l.written.Write(p)
	l.rx.Write(l.reply)

	return len(p), nil
}

func (l *loopback) ResetInputBuffer() error {
	l.rx.Reset()
	return nil
}

func (l *loopback) Drain() error { return nil }

func (l *loopback) Close() error { return nil }

func TestStatusCodeJSONRoundTrip(t *testing.T) {
	t.Parallel()

	codes := []StatusCode{StatusUnknown, StatusPoweredOn, StatusSoftwareReset, StatusBrownOut, StatusWatchdog}
	for _, want := range codes {
		t.Run(want.String(), func(t *testing.T) {
			t.Parallel()

			raw, err := json.Marshal(map[string]StatusCode{"restart": want})
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			var got map[string]StatusCode
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", raw, err)
			}

			if got["restart"] != want {
				t.Errorf("restart = %s, want %s", got["restart"], want)
			}
		})
	}

	var s StatusCode
	if err := s.UnmarshalText([]byte("P")); err == nil {
		t.Errorf("UnmarshalText(P) = nil, want error")
	}
}
