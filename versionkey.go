package omniarchive

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Delimiter separates the fields of a version key.
	Delimiter = "."

	// LogicalDateLayout is the layout of the logical date field.
	LogicalDateLayout = "20060102"

	// PhysicalDateLayout is the layout of the physical date field.
	PhysicalDateLayout = "20060102150405"

	propsSuffix = "props"
)

// Metadata keys set on every archive handle.
const (
	MetaLogicalDate  = "logical_date"
	MetaPhysicalDate = "physical_date"
	MetaPrefix       = "prefix"
)

// VersionKey is a parsed fully qualified object name,
// <prefix>.<logical_date>.<physical_date>.
type VersionKey struct {
	Prefix       string
	LogicalDate  string
	PhysicalDate string
}

// NewVersionKey renders a version key from its parts. Both dates are
// formatted in their own location.
func NewVersionKey(prefix string, logical, physical time.Time) (VersionKey, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return VersionKey{}, err
	}
	ld, err := FormatLogicalDate(logical)
	if err != nil {
		return VersionKey{}, err
	}
	pd, err := FormatPhysicalDate(physical)
	if err != nil {
		return VersionKey{}, err
	}
	return VersionKey{Prefix: prefix, LogicalDate: ld, PhysicalDate: pd}, nil
}

// ParseVersionKey splits fqon on its last two delimiters and validates
// both date fields.
func ParseVersionKey(fqon string) (VersionKey, error) {
	i := strings.LastIndex(fqon, Delimiter)
	if i < 0 {
		return VersionKey{}, validationError("parse key", fmt.Sprintf("%q is not a version key", fqon))
	}
	j := strings.LastIndex(fqon[:i], Delimiter)
	if j <= 0 {
		return VersionKey{}, validationError("parse key", fmt.Sprintf("%q is not a version key", fqon))
	}

	k := VersionKey{
		Prefix:       fqon[:j],
		LogicalDate:  fqon[j+1 : i],
		PhysicalDate: fqon[i+1:],
	}
	if !isDigits(k.LogicalDate, len(LogicalDateLayout)) || !isDigits(k.PhysicalDate, len(PhysicalDateLayout)) {
		return VersionKey{}, validationError("parse key", fmt.Sprintf("%q has malformed date fields", fqon))
	}
	return k, nil
}

// String returns the fully qualified object name.
func (k VersionKey) String() string {
	return k.Prefix + Delimiter + k.LogicalDate + Delimiter + k.PhysicalDate
}

// LogicalTime returns midnight of the logical date in loc.
func (k VersionKey) LogicalTime(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(LogicalDateLayout, k.LogicalDate, loc)
	if err != nil {
		return time.Time{}, validationError("parse key", err.Error())
	}
	return t, nil
}

// PhysicalTime returns the physical date in loc.
func (k VersionKey) PhysicalTime(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(PhysicalDateLayout, k.PhysicalDate, loc)
	if err != nil {
		return time.Time{}, validationError("parse key", err.Error())
	}
	return t, nil
}

// ValidatePrefix rejects empty prefixes and prefixes containing Delimiter.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return validationError("prefix", "prefix is required")
	}
	if strings.Contains(prefix, Delimiter) {
		return validationError("prefix", fmt.Sprintf("prefix %q must not contain %q", prefix, Delimiter))
	}
	return nil
}

// PropsKey returns the key of the retention props object for prefix.
func PropsKey(prefix string) string {
	return prefix + Delimiter + propsSuffix
}

// FormatLogicalDate renders t as YYYYMMDD.
func FormatLogicalDate(t time.Time) (string, error) {
	if err := checkDate("logical date", t); err != nil {
		return "", err
	}
	return t.Format(LogicalDateLayout), nil
}

// FormatPhysicalDate renders t as YYYYMMDDHHMMSS.
func FormatPhysicalDate(t time.Time) (string, error) {
	if err := checkDate("physical date", t); err != nil {
		return "", err
	}
	return t.Format(PhysicalDateLayout), nil
}

// ParseLogicalDate parses a YYYYMMDD string in loc.
func ParseLogicalDate(s string, loc *time.Location) (time.Time, error) {
	if !isDigits(s, len(LogicalDateLayout)) {
		return time.Time{}, validationError("logical date", fmt.Sprintf("%q is not YYYYMMDD", s))
	}
	t, err := time.ParseInLocation(LogicalDateLayout, s, loc)
	if err != nil {
		return time.Time{}, validationError("logical date", err.Error())
	}
	return t, nil
}

// ParsePhysicalDate parses a YYYYMMDDHHMMSS string in loc.
func ParsePhysicalDate(s string, loc *time.Location) (time.Time, error) {
	if !isDigits(s, len(PhysicalDateLayout)) {
		return time.Time{}, validationError("physical date", fmt.Sprintf("%q is not YYYYMMDDHHMMSS", s))
	}
	t, err := time.ParseInLocation(PhysicalDateLayout, s, loc)
	if err != nil {
		return time.Time{}, validationError("physical date", err.Error())
	}
	return t, nil
}

// checkDate rejects zero times and years that do not render as four digits.
func checkDate(what string, t time.Time) error {
	if t.IsZero() {
		return validationError(what, "date is required")
	}
	if y := t.Year(); y < 1 || y > 9999 {
		return validationError(what, fmt.Sprintf("year %d out of range", y))
	}
	return nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
