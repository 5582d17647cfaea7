package sensor

import "golang.org/x/text/cases"

// Kind is the closed set of EZO circuits the fleet knows how to read.
type Kind string

const (
	KindRTD Kind = "RTD"
	KindPH  Kind = "pH"
	KindEC  Kind = "EC"
	KindDO  Kind = "DO"
	KindORP Kind = "ORP"

	// DefaultKind is used for device types we do not recognise, so an
	// unknown but responsive circuit still joins the fleet.
	DefaultKind = KindRTD
)

//nolint:gochecknoglobals // Read-only lookup table
var kinds = []Kind{KindRTD, KindPH, KindEC, KindDO, KindORP}

// ParseKind maps the identification device type to a Kind, ignoring case.
// The second result reports whether the type was recognised.
func ParseKind(deviceType string) (Kind, bool) {
	// Casers keep state, one per call.
	fold := cases.Fold()
	want := fold.String(deviceType)

	for _, k := range kinds {
		if fold.String(string(k)) == want {
			return k, true
		}
	}

	return DefaultKind, false
}

// Unit is the engineering unit a reading of this kind is reported in.
func (k Kind) Unit() string {
	switch k {
	case KindRTD:
		return "celsius"
	case KindPH:
		return "pH"
	case KindEC:
		return "uS/cm"
	case KindDO:
		return "mg/L"
	case KindORP:
		return "mV"
	default:
		return ""
	}
}
