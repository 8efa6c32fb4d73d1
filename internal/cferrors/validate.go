package cferrors

import "strings"

// forbiddenChars is the shell-metacharacter set any user-supplied identifier
// must not contain. Rejecting these before any argv is assembled closes the
// shell-injection surface for every subprocess the engine spawns.
const forbiddenChars = "&|;:$*?<>! \\.][+'`~}{\")("

// forbiddenCharsDomain is the same set minus '.', which is structurally
// required in an FQDN; the dot itself is constrained separately by
// ValidateDomain's FQDN shape check instead of being banned outright.
const forbiddenCharsDomain = "&|;:$*?<>! \\][+'`~}{\")("

// ValidateIdentifier rejects s if it contains any forbidden shell
// metacharacter, empty, or exceeds a generous length bound. field names the
// offending field for the returned SafeError. Use for leaseId,
// gmsaAccountName, username, and short host names — none of which should
// ever contain a dot.
func ValidateIdentifier(field, s string) error {
	if s == "" {
		return New(KindInvalidInput, field+" must not be empty")
	}
	if len(s) > 253 {
		return New(KindInvalidInput, field+" exceeds maximum length")
	}
	if strings.ContainsAny(s, forbiddenChars) {
		return New(KindInvalidInput, field+" contains a disallowed character")
	}
	return nil
}

// ValidateDomain rejects domain if it contains any forbidden shell
// metacharacter other than '.', is empty, exceeds a generous length bound, or
// does not look like an FQDN (at least one label, no leading/trailing/
// doubled dots).
func ValidateDomain(domain string) error {
	if domain == "" {
		return New(KindInvalidInput, "domain must not be empty")
	}
	if len(domain) > 253 {
		return New(KindInvalidInput, "domain exceeds maximum length")
	}
	if strings.ContainsAny(domain, forbiddenCharsDomain) {
		return New(KindInvalidInput, "domain contains a disallowed character")
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") || strings.Contains(domain, "..") {
		return New(KindInvalidInput, "domain is not a well-formed FQDN")
	}
	return nil
}
