package validation

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// ErrLocationTooLong is returned when the location label exceeds the configured maximum.
var ErrLocationTooLong = errors.New("location too long")

var validate = validator.New()

// LocationLabel resolves the free-text label stored with an observation.
// An empty input falls back to fallback; any other input is kept verbatim,
// surrounding whitespace included. maxLen counts runes; 0 disables the check.
func LocationLabel(raw, fallback string, maxLen int) (string, error) {
	if raw == "" {
		return fallback, nil
	}
	if maxLen > 0 {
		if err := validate.Var(raw, "max="+strconv.Itoa(maxLen)); err != nil {
			return "", ErrLocationTooLong
		}
	}
	return raw, nil
}
