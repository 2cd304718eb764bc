package validation

import (
	"errors"
	"math"
	"strings"
	"unicode"

	"github.com/kjstillabower/geoweather-gateway/internal/apperr"
)

// DefaultTimezone is used when a forecast request names no timezone.
const DefaultTimezone = "Asia/Tokyo"

// MaxPlaceLength bounds place queries, in runes.
const MaxPlaceLength = 200

// ErrPlaceEmpty is returned when place is empty or whitespace-only after trim.
var ErrPlaceEmpty = errors.New("place is required")

// ErrPlaceTooLong is returned when place length exceeds the maximum.
var ErrPlaceTooLong = errors.New("place too long")

// ErrPlaceInvalidChars is returned when place contains control characters.
var ErrPlaceInvalidChars = errors.New("place contains invalid characters")

// ErrOutOfRange is returned when an integer parameter is outside its bounds.
var ErrOutOfRange = errors.New("out of range")

// ErrCoordinates is returned for non-finite or out-of-range coordinates.
var ErrCoordinates = errors.New("latitude / longitude must be finite and in range")

// ErrTimezone is returned for timezone names the forecast API cannot accept.
var ErrTimezone = errors.New("invalid timezone")

func invalid(field string, sentinel error) error {
	return &apperr.ValidationError{Field: field, Message: sentinel.Error(), Err: sentinel}
}

// ValidatePlace trims the input and enforces a non-empty, bounded query free of
// control characters. Any script is accepted. Returns the trimmed string.
func ValidatePlace(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", invalid("place", ErrPlaceEmpty)
	}
	if len(r) > MaxPlaceLength {
		return "", invalid("place", ErrPlaceTooLong)
	}
	for _, c := range r {
		if unicode.IsControl(c) {
			return "", invalid("place", ErrPlaceInvalidChars)
		}
	}
	return s, nil
}

// ValidateRange rejects v outside [lo, hi].
func ValidateRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid(field, ErrOutOfRange)
	}
	return nil
}

// Clamp returns def when v is nil, otherwise *v forced into [lo, hi].
func Clamp(v *int, def, lo, hi int) int {
	n := def
	if v != nil {
		n = *v
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// ValidateCoordinates rejects non-finite latitude/longitude and values outside
// the geographic range.
func ValidateCoordinates(lat, lon float64) error {
	if !isFinite(lat) || !isFinite(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return invalid("latitude / longitude", ErrCoordinates)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// NormalizeTimezone trims tz and defaults it to DefaultTimezone. Names are
// restricted to the characters IANA zone names and "auto" use.
func NormalizeTimezone(tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return DefaultTimezone, nil
	}
	if len(tz) > 64 {
		return "", invalid("timezone", ErrTimezone)
	}
	for _, c := range tz {
		if !isTimezoneRune(c) {
			return "", invalid("timezone", ErrTimezone)
		}
	}
	return tz, nil
}

func isTimezoneRune(r rune) bool {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return true
	}
	switch r {
	case '/', '_', '-', '+':
		return true
	}
	return false
}
