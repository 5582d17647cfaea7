// Package ezo implements the Atlas Scientific EZO UART command set on top of a
// terminator framed exchange.
package ezo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"arksync/backend/pkg/serialport"
)

const (
	CmdInfo        = "i"
	CmdRead        = "R"
	CmdStatus      = "Status"
	CmdSleep       = "Sleep"
	CmdCalibration = "Cal,?"

	MarkerInfo        = "?I,"
	MarkerStatus      = "?STATUS,"
	MarkerCalibration = "?Cal,"

	InfoAttempts   = 3
	InfoRetryDelay = 100 * time.Millisecond
)

// Exchanger performs one request/response exchange. serialport.Conn satisfies it.
type Exchanger interface {
	SendCommand(cmd string) (string, error)
	Close() error
}

// Observer is told about every exchange, successful or not.
type Observer func(cmd string, took time.Duration, err error)

// Device talks to one EZO circuit. It is not safe for concurrent use; share it
// through a handle that serializes access.
type Device struct {
	conn Exchanger
	l    *slog.Logger

	// RetryDelay is the pause between identification attempts.
	RetryDelay time.Duration
	// Observe, when set, is called after every exchange.
	Observe Observer
}

// Connect opens the port and wraps it.
func Connect(l *slog.Logger, p serialport.Port) (*Device, error) {
	conn, err := serialport.Open(p)
	if err != nil {
		return nil, err
	}

	return NewDevice(l.With(slog.String("port", p.Name)), conn), nil
}

// NewDevice wraps an existing exchanger.
func NewDevice(l *slog.Logger, conn Exchanger) *Device {
	return &Device{
		conn:       conn,
		l:          l,
		RetryDelay: InfoRetryDelay,
	}
}

// Close releases the underlying connection.
func (d *Device) Close() error {
	return d.conn.Close()
}

// DeviceInfo identifies the circuit. Devices in continuous mode can answer with
// a stale reading first, so mismatching responses are retried a few times.
// Transport failures are returned as is.
func (d *Device) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var last string

	for attempt := 1; attempt <= InfoAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, d.RetryDelay); err != nil {
				return DeviceInfo{}, err
			}
		}

		resp, err := d.send(ctx, CmdInfo)
		if err != nil {
			return DeviceInfo{}, err
		}

		if info, ok := parseInfo(resp); ok {
			return info, nil
		}

		last = resp
		d.l.Debug("unexpected identification response",
			slog.Int("attempt", attempt),
			slog.Int("attempts", InfoAttempts),
			slog.String("response", resp),
		)
	}

	return DeviceInfo{}, &ProtocolError{
		Command:  CmdInfo,
		Response: last,
		Err:      fmt.Errorf("%w after %d attempts", ErrUnexpectedResponse, InfoAttempts),
	}
}

// ReadTemperature takes one reading. The transport timeout bounds a measurement that never completes.
func (d *Device) ReadTemperature(ctx context.Context) (float64, error) {
	resp, err := d.send(ctx, CmdRead)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, &ProtocolError{Command: CmdRead, Response: resp, Err: err}
	}

	return v, nil
}

// Read takes one reading from any circuit. Circuits with several enabled
// outputs (EC reports conductivity,TDS,salinity,SG) yield the primary one.
func (d *Device) Read(ctx context.Context) (float64, error) {
	resp, err := d.send(ctx, CmdRead)
	if err != nil {
		return 0, err
	}

	primary, _, _ := strings.Cut(resp, ",")

	v, err := strconv.ParseFloat(strings.TrimSpace(primary), 64)
	if err != nil {
		return 0, &ProtocolError{Command: CmdRead, Response: resp, Err: err}
	}

	return v, nil
}

// CheckStatus returns the restart reason of the circuit.
func (d *Device) CheckStatus(ctx context.Context) (StatusCode, error) {
	resp, err := d.send(ctx, CmdStatus)
	if err != nil {
		return StatusUnknown, err
	}

	if !strings.HasPrefix(resp, MarkerStatus) {
		return StatusUnknown, &ProtocolError{Command: CmdStatus, Response: resp, Err: ErrUnexpectedResponse}
	}

	if len(resp) <= len(MarkerStatus) {
		return StatusUnknown, nil
	}

	return statusFromCode(resp[len(MarkerStatus)]), nil
}

// GetCalibration returns how many calibration points are stored. An unparsable count reads as zero.
func (d *Device) GetCalibration(ctx context.Context) (CalibrationStatus, error) {
	resp, err := d.send(ctx, CmdCalibration)
	if err != nil {
		return CalibrationStatus{}, err
	}

	if !strings.HasPrefix(resp, MarkerCalibration) {
		return CalibrationStatus{}, &ProtocolError{Command: CmdCalibration, Response: resp, Err: ErrUnexpectedResponse}
	}

	points, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(resp, MarkerCalibration)), 10, 8)
	if err != nil {
		points = 0
	}

	return CalibrationStatus{CalibrationPoints: uint8(points)}, nil
}

// Sleep puts the circuit in low power mode. The response is discarded.
func (d *Device) Sleep(ctx context.Context) error {
	_, err := d.send(ctx, CmdSleep)
	return err
}

// SendRaw sends cmd and returns the response untouched. Diagnostics only.
func (d *Device) SendRaw(ctx context.Context, cmd string) (string, error) {
	return d.send(ctx, cmd)
}

func (d *Device) send(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := d.conn.SendCommand(cmd)

	if d.Observe != nil {
		d.Observe(cmd, time.Since(start), err)
	}

	return resp, err
}

// parseInfo accepts "?I,<type>,<firmware>". A firmware field that is not a number reads as zero.
func parseInfo(resp string) (DeviceInfo, bool) {
	rest, ok := strings.CutPrefix(resp, MarkerInfo)
	if !ok {
		return DeviceInfo{}, false
	}

	parts := strings.Split(rest, ",")
	if len(parts) < 2 {
		return DeviceInfo{}, false
	}

	fw, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		fw = 0
	}

	return DeviceInfo{DeviceType: strings.TrimSpace(parts[0]), FirmwareVersion: fw}, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
