package ezo

import "fmt"

// DeviceInfo is the answer to the identification command.
type DeviceInfo struct {
	DeviceType      string  `json:"deviceType"`
	FirmwareVersion float64 `json:"firmwareVersion"`
}

// StatusCode is the restart reason reported by the status command.
type StatusCode int

const (
	StatusUnknown StatusCode = iota
	StatusPoweredOn
	StatusSoftwareReset
	StatusBrownOut
	StatusWatchdog
)

func statusFromCode(c byte) StatusCode {
	switch c {
	case 'P':
		return StatusPoweredOn
	case 'S':
		return StatusSoftwareReset
	case 'B':
		return StatusBrownOut
	case 'W':
		return StatusWatchdog
	default:
		return StatusUnknown
	}
}

func (s StatusCode) String() string {
	switch s {
	case StatusPoweredOn:
		return "powered_on"
	case StatusSoftwareReset:
		return "software_reset"
	case StatusBrownOut:
		return "brown_out"
	case StatusWatchdog:
		return "watchdog"
	default:
		return "unknown"
	}
}

func (s StatusCode) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StatusCode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown":
		*s = StatusUnknown
	case "powered_on":
		*s = StatusPoweredOn
	case "software_reset":
		*s = StatusSoftwareReset
	case "brown_out":
		*s = StatusBrownOut
	case "watchdog":
		*s = StatusWatchdog
	default:
		return fmt.Errorf("unknown status code %q", text)
	}
	return nil
}

// CalibrationStatus is advisory, a zero count may also mean the device answered oddly.
type CalibrationStatus struct {
	CalibrationPoints uint8 `json:"calibrationPoints"`
}
