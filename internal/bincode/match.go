package bincode

const (
	domainMask   Code = MaxDomain << DomainShift
	categoryMask Code = MaxCategory << CategoryShift
	severityMask Code = MaxSeverity << SeverityShift
	sourceMask   Code = MaxSource << SourceShift
)

// Selector matches codes on a prefix of their fields with a single AND and
// compare, so large collections can be filtered without unpacking.
type Selector struct {
	mask Code
	want Code
}

// ForDomain selects every code of a domain.
func ForDomain(domain uint16) Selector {
	return Selector{mask: domainMask, want: Code(domain) << DomainShift}
}

// Category narrows the selector to a category.
func (s Selector) Category(category uint16) Selector {
	s.mask |= categoryMask
	s.want = s.want&^categoryMask | Code(category)<<CategoryShift
	return s
}

// Severity narrows the selector to an exact severity.
func (s Selector) Severity(severity uint8) Selector {
	s.mask |= severityMask
	s.want = s.want&^severityMask | Code(severity)<<SeverityShift
	return s
}

// Source narrows the selector to an exact source.
func (s Selector) Source(source uint8) Selector {
	s.mask |= sourceMask
	s.want = s.want&^sourceMask | Code(source)<<SourceShift
	return s
}

// Match reports whether code carries every field the selector fixes.
func (s Selector) Match(code Code) bool {
	return code&s.mask == s.want
}

// Match is the function form: domain, then optionally category, then severity.
func Match(code Code, domain uint16, category *uint16, severity *uint8) bool {
	s := ForDomain(domain)
	if category != nil {
		s = s.Category(*category)
		if severity != nil {
			s = s.Severity(*severity)
		}
	}
	return s.Match(code)
}

// SeverityIn reports whether the severity bits of code intersect mask.
func SeverityIn(code Code, mask uint8) bool {
	return uint8(code>>SeverityShift)&mask != 0
}

// Filter returns the codes accepted by s, preserving order.
func Filter(codes []Code, s Selector) []Code {
	out := make([]Code, 0, len(codes))
	for _, c := range codes {
		if s.Match(c) {
			out = append(out, c)
		}
	}
	return out
}
