package vn

import "strings"

// Family is the device family, derived from the model number.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyVN100
	FamilyVN200
	FamilyVN300
)

func (f Family) String() string {
	switch f {
	case FamilyVN100:
		return "VN-100"
	case FamilyVN200:
		return "VN-200"
	case FamilyVN300:
		return "VN-300"
	default:
		return "unknown"
	}
}

func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// HasINS reports whether the family carries a GNSS-aided INS, i.e. whether
// GPS fix and odometry messages can ever have data.
func (f Family) HasINS() bool {
	return f == FamilyVN200 || f == FamilyVN300
}

// FamilyFromModel maps a model number such as "VN-200T-CR" to its family.
func FamilyFromModel(model string) Family {
	m := strings.ToUpper(strings.TrimSpace(model))
	m = strings.ReplaceAll(m, " ", "")
	switch {
	case strings.HasPrefix(m, "VN-100"), strings.HasPrefix(m, "VN-110"):
		return FamilyVN100
	case strings.HasPrefix(m, "VN-200"), strings.HasPrefix(m, "VN-210"):
		return FamilyVN200
	case strings.HasPrefix(m, "VN-300"), strings.HasPrefix(m, "VN-310"):
		return FamilyVN300
	default:
		return FamilyUnknown
	}
}
