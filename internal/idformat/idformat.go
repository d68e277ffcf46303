package idformat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/genlab/seqmeta/internal/filter"
)

// Public identifier prefixes. Raw integer keys never leave the service;
// external identifiers carry a prefix, a zero-padded key and a Luhn check
// digit, so a single mistyped digit is caught before it reaches a query.
const (
	SamplePrefix          = "SAM"
	ParticipantPrefix     = "PRT"
	SequencingGroupPrefix = "SGP"
)

// minDigits pads short keys so identifiers keep a stable minimum width
const minDigits = 5

// ErrMalformedID reports an identifier that fails prefix, shape or checksum
// validation.
var ErrMalformedID = errors.New("malformed identifier")

// Format renders a raw integer key as a public identifier.
func Format(prefix string, id int) string {
	digits := fmt.Sprintf("%0*d", minDigits, id)
	return prefix + digits + strconv.Itoa(checkDigit(digits))
}

// Parse extracts the raw integer key from a public identifier, validating
// prefix, shape and check digit. Lowercase input is accepted.
func Parse(prefix, formatted string) (int, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(formatted))
	if !strings.HasPrefix(cleaned, prefix) {
		return 0, fmt.Errorf("%w: %q must start with %s", ErrMalformedID, formatted, prefix)
	}

	rest := cleaned[len(prefix):]
	if len(rest) < minDigits+1 {
		return 0, fmt.Errorf("%w: %q is too short", ErrMalformedID, formatted)
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, fmt.Errorf("%w: %q carries non-digit characters", ErrMalformedID, formatted)
		}
	}

	payload := rest[:len(rest)-1]
	check := int(rest[len(rest)-1] - '0')
	if checkDigit(payload) != check {
		return 0, fmt.Errorf("%w: %q fails its checksum", ErrMalformedID, formatted)
	}

	id, err := strconv.Atoi(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedID, formatted)
	}
	return id, nil
}

// Sample renders a raw sample key as its public identifier.
func Sample(id int) string { return Format(SamplePrefix, id) }

// ParseSample extracts the raw key from a public sample identifier.
func ParseSample(formatted string) (int, error) { return Parse(SamplePrefix, formatted) }

// Participant renders a raw participant key as its public identifier.
func Participant(id int) string { return Format(ParticipantPrefix, id) }

// ParseParticipant extracts the raw key from a public participant identifier.
func ParseParticipant(formatted string) (int, error) { return Parse(ParticipantPrefix, formatted) }

// SequencingGroup renders a raw sequencing group key as its public identifier.
func SequencingGroup(id int) string { return Format(SequencingGroupPrefix, id) }

// ParseSequencingGroup extracts the raw key from a public sequencing group
// identifier.
func ParseSequencingGroup(formatted string) (int, error) {
	return Parse(SequencingGroupPrefix, formatted)
}

// ParseFilter rewrites a public-identifier filter into a raw-key filter.
// Any malformed identifier in any operand fails the whole rewrite.
func ParseFilter(prefix string, f filter.Filter[string]) (filter.Filter[int], error) {
	return filter.Map(f, func(formatted string) (int, error) {
		return Parse(prefix, formatted)
	})
}

// checkDigit computes the Luhn check digit over a digit string.
func checkDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}
