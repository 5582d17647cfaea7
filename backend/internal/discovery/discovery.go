// Package discovery finds USB serial bridges that EZO circuits sit behind.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"go.bug.st/serial/enumerator"

	"arksync/backend/pkg/serialport"
	"arksync/backend/pkg/utils"
)

// FTDI bridges used on the carrier boards.
const (
	VendorFTDI    uint16 = 0x0403
	ProductFT232R uint16 = 0x6001
	ProductFT231X uint16 = 0x6015
)

var ErrNoSerialNumber = errors.New("port has no serial number")

// DiscoveryError reports a port that was seen but could not be used.
type DiscoveryError struct {
	Port string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery %s: %v", e.Port, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Enumerator lists the serial ports of the host.
type Enumerator func() ([]*enumerator.PortDetails, error)

// Filter selects ports by USB identity.
type Filter struct {
	VendorID   uint16
	ProductIDs []uint16
}

// DefaultFilter matches the FTDI bridges.
func DefaultFilter() Filter {
	return Filter{VendorID: VendorFTDI, ProductIDs: []uint16{ProductFT232R, ProductFT231X}}
}

func (f Filter) matches(d *enumerator.PortDetails) bool {
	if !d.IsUSB {
		return false
	}

	vid, err := parseID(d.VID)
	if err != nil || vid != f.VendorID {
		return false
	}

	pid, err := parseID(d.PID)
	if err != nil {
		return false
	}

	return slices.Contains(f.ProductIDs, pid)
}

// Scanner enumerates candidate ports.
type Scanner struct {
	l      *slog.Logger
	list   Enumerator
	filter Filter
}

// NewScanner returns a scanner over the host's ports. A nil list uses the
// platform enumerator.
func NewScanner(l *slog.Logger, list Enumerator, filter Filter) *Scanner {
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}

	return &Scanner{
		l:      l.With(slog.String("component", "discovery")),
		list:   list,
		filter: filter,
	}
}

// Scan returns every port matching the filter that has a serial number.
// Ports without one are skipped, they cannot be told apart across cycles.
func (s *Scanner) Scan() ([]serialport.Port, error) {
	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	var ports []serialport.Port

	for _, d := range details {
		if d == nil || !s.filter.matches(d) {
			continue
		}

		if d.SerialNumber == "" {
			s.l.Debug("skipping port", utils.ErrAttr(&DiscoveryError{Port: d.Name, Err: ErrNoSerialNumber}))
			continue
		}

		ports = append(ports, serialport.Port{Name: d.Name, SerialNumber: d.SerialNumber})
	}

	return ports, nil
}

// parseID parses a hex USB identifier as reported by the enumerator ("0403").
func parseID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}

	return uint16(v), nil
}
