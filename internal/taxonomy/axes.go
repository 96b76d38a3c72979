package taxonomy

import (
	"fmt"
	"strings"
)

// Domain names the subsystem a failure originates from.
type Domain uint16

const (
	DomainUnknown   Domain = 0
	DomainSystem    Domain = 1
	DomainParser    Domain = 2
	DomainValidator Domain = 3
	DomainSecurity  Domain = 4
	DomainRuntime   Domain = 5
	DomainIO        Domain = 6
	DomainNetwork   Domain = 7
	DomainDatabase  Domain = 8
	DomainExtension Domain = 9
)

func (d Domain) String() string {
	switch d {
	case DomainSystem:
		return "SYSTEM"
	case DomainParser:
		return "PARSER"
	case DomainValidator:
		return "VALIDATOR"
	case DomainSecurity:
		return "SECURITY"
	case DomainRuntime:
		return "RUNTIME"
	case DomainIO:
		return "IO"
	case DomainNetwork:
		return "NETWORK"
	case DomainDatabase:
		return "DATABASE"
	case DomainExtension:
		return "EXTENSION"
	}
	return fmt.Sprintf("DOMAIN(%d)", uint16(d))
}

// Category names the kind of problem.
type Category uint16

const (
	CategoryUnknown             Category = 0
	CategorySyntax              Category = 1
	CategoryType                Category = 2
	CategoryValidation          Category = 3
	CategoryRuntime             Category = 4
	CategoryLogic               Category = 5
	CategoryConfiguration       Category = 6
	CategoryPermission          Category = 7
	CategoryResource            Category = 8
	CategoryResourceNotFound    Category = 9
	CategoryResourceUnavailable Category = 10
	CategoryResourceExhausted   Category = 11
	CategoryTimeout             Category = 12
	CategoryIntegrity           Category = 13
)

func (c Category) String() string {
	switch c {
	case CategorySyntax:
		return "SYNTAX"
	case CategoryType:
		return "TYPE"
	case CategoryValidation:
		return "VALIDATION"
	case CategoryRuntime:
		return "RUNTIME"
	case CategoryLogic:
		return "LOGIC"
	case CategoryConfiguration:
		return "CONFIGURATION"
	case CategoryPermission:
		return "PERMISSION"
	case CategoryResource:
		return "RESOURCE"
	case CategoryResourceNotFound:
		return "RESOURCE_NOT_FOUND"
	case CategoryResourceUnavailable:
		return "RESOURCE_UNAVAILABLE"
	case CategoryResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case CategoryTimeout:
		return "TIMEOUT"
	case CategoryIntegrity:
		return "INTEGRITY"
	}
	return fmt.Sprintf("CATEGORY(%d)", uint16(c))
}

// Severity is one of eight ordered levels. Every level occupies its own bit.
type Severity uint8

const (
	SevTrace Severity = 1 << iota
	SevDebug
	SevInfo
	SevWarning
	SevError
	SevCritical
	SevFatal
	SevEmergency
)

func (s Severity) String() string {
	switch s {
	case SevTrace:
		return "TRACE"
	case SevDebug:
		return "DEBUG"
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	case SevCritical:
		return "CRITICAL"
	case SevFatal:
		return "FATAL"
	case SevEmergency:
		return "EMERGENCY"
	}
	return fmt.Sprintf("SEVERITY(%d)", uint8(s))
}

// Mask is a set of severities.
type Mask uint8

// MaskOf combines severities into a Mask.
func MaskOf(sevs ...Severity) Mask {
	var m Mask
	for _, s := range sevs {
		m |= Mask(s)
	}
	return m
}

// Has reports whether s is part of the mask.
func (m Mask) Has(s Severity) bool {
	return s != 0 && m&Mask(s) == Mask(s)
}

func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for bit := SevTrace; ; bit <<= 1 {
		if m.Has(bit) {
			parts = append(parts, bit.String())
		}
		if bit == SevEmergency {
			break
		}
	}
	return strings.Join(parts, "|")
}

// Source names the party accountable for a failure.
type Source uint8

const (
	SourceSystem Source = 1 << iota
	SourceUser
	SourceExternal
	SourceParser
	SourceValidator
	SourceRuntime
	SourceMiddleware
	SourcePlugin
)

func (s Source) String() string {
	switch s {
	case SourceSystem:
		return "SYSTEM"
	case SourceUser:
		return "USER"
	case SourceExternal:
		return "EXTERNAL"
	case SourceParser:
		return "PARSER"
	case SourceValidator:
		return "VALIDATOR"
	case SourceRuntime:
		return "RUNTIME"
	case SourceMiddleware:
		return "MIDDLEWARE"
	case SourcePlugin:
		return "PLUGIN"
	}
	return fmt.Sprintf("SOURCE(%d)", uint8(s))
}
