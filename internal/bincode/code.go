// Package bincode packs the five classification fields of a failure into one
// 64-bit value and unpacks them again.
//
// Layout, most significant bits first:
//
//	domain(16) | category(16) | severity(8) | source(8) | offset(16)
//
// Decompose is the exact inverse of Compose for every in-range tuple.
package bincode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Code is a packed binary error code. Its external form is the decimal string.
type Code uint64

const (
	DomainBits   = 16
	CategoryBits = 16
	SeverityBits = 8
	SourceBits   = 8
	OffsetBits   = 16

	OffsetShift   = 0
	SourceShift   = OffsetShift + OffsetBits
	SeverityShift = SourceShift + SourceBits
	CategoryShift = SeverityShift + SeverityBits
	DomainShift   = CategoryShift + CategoryBits

	MaxDomain   = 1<<DomainBits - 1
	MaxCategory = 1<<CategoryBits - 1
	MaxSeverity = 1<<SeverityBits - 1
	MaxSource   = 1<<SourceBits - 1
	MaxOffset   = 1<<OffsetBits - 1
)

var (
	// ErrOutOfRange is wrapped by RangeError.
	ErrOutOfRange = errors.New("component out of range")
	// ErrMalformed is returned by Parse for text that is not a code.
	ErrMalformed = errors.New("malformed binary code")
)

// RangeError reports a component that does not fit its bit budget.
type RangeError struct {
	Field string
	Value int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d exceeds [0, %d]", e.Field, e.Value, e.Max)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// Components is the unpacked form of a Code.
type Components struct {
	Domain   uint16 `json:"domain"`
	Category uint16 `json:"category"`
	Severity uint8  `json:"severity"`
	Source   uint8  `json:"source"`
	Offset   uint16 `json:"offset"`
}

// Code packs c. The field types already enforce the bit budgets.
func (c Components) Code() Code {
	return Code(c.Domain)<<DomainShift |
		Code(c.Category)<<CategoryShift |
		Code(c.Severity)<<SeverityShift |
		Code(c.Source)<<SourceShift |
		Code(c.Offset)<<OffsetShift
}

// Compose validates every component against its bit budget and packs them.
// It never panics; a violation is returned as *RangeError.
func Compose(domain, category, severity, source, offset int) (Code, error) {
	var (
		c   Components
		err error
	)
	if c.Domain, err = safecast.Conv[uint16](domain); err != nil {
		return 0, &RangeError{Field: "domain", Value: domain, Max: MaxDomain}
	}
	if c.Category, err = safecast.Conv[uint16](category); err != nil {
		return 0, &RangeError{Field: "category", Value: category, Max: MaxCategory}
	}
	if c.Severity, err = safecast.Conv[uint8](severity); err != nil {
		return 0, &RangeError{Field: "severity", Value: severity, Max: MaxSeverity}
	}
	if c.Source, err = safecast.Conv[uint8](source); err != nil {
		return 0, &RangeError{Field: "source", Value: source, Max: MaxSource}
	}
	if c.Offset, err = safecast.Conv[uint16](offset); err != nil {
		return 0, &RangeError{Field: "offset", Value: offset, Max: MaxOffset}
	}
	return c.Code(), nil
}

// Decompose unpacks code.
func Decompose(code Code) Components {
	return Components{
		Domain:   uint16(code >> DomainShift & MaxDomain),
		Category: uint16(code >> CategoryShift & MaxCategory),
		Severity: uint8(code >> SeverityShift & MaxSeverity),
		Source:   uint8(code >> SourceShift & MaxSource),
		Offset:   uint16(code >> OffsetShift & MaxOffset),
	}
}

// Components is a shortcut for Decompose(c).
func (c Code) Components() Components { return Decompose(c) }

func (c Code) String() string { return strconv.FormatUint(uint64(c), 10) }

// Hex renders the code as 0x followed by 16 upper-case hex digits.
func (c Code) Hex() string { return fmt.Sprintf("0x%016X", uint64(c)) }

// Binary renders all 64 bits.
func (c Code) Binary() string { return fmt.Sprintf("%064b", uint64(c)) }

// BinaryFields renders the bits grouped by field, separated by spaces.
func (c Code) BinaryFields() string {
	b := c.Binary()
	return strings.Join([]string{b[0:16], b[16:32], b[32:40], b[40:48], b[48:64]}, " ")
}

// MarshalText emits the decimal form so JSON never loses precision.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Code) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Parse accepts a decimal string (optionally with a trailing "n") or a
// 0x-prefixed hex string.
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "n")
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrMalformed)
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return Code(v), nil
}
