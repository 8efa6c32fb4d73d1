package kerbtypes

import (
	"fmt"
	"strings"
)

// DomainSpec is the canonical, immutable-for-the-lease representation of an
// Active Directory domain: realm in uppercase, DNS domain in lowercase, and
// the LDAP base DN derived from it.
type DomainSpec struct {
	Realm   string // CONTOSO.COM
	DNSName string // contoso.com
	BaseDN  string // DC=contoso,DC=com
}

// NewDomainSpec builds a DomainSpec from a user-supplied domain string.
func NewDomainSpec(domain string) DomainSpec {
	lower := strings.ToLower(domain)
	return DomainSpec{
		Realm:   strings.ToUpper(domain),
		DNSName: lower,
		BaseDN:  baseDNFromDomain(lower),
	}
}

func baseDNFromDomain(dnsDomain string) string {
	labels := strings.Split(dnsDomain, ".")
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		parts = append(parts, "DC="+l)
	}
	return strings.Join(parts, ",")
}

// DCEndpoint is an FQDN pointing at a Domain Controller, produced by the DC
// Locator. It must contain the domain, compared case-insensitively.
type DCEndpoint string

// Valid reports whether the endpoint is a plausible FQDN for domain.
func (d DCEndpoint) Valid(domain string) bool {
	s := strings.TrimSuffix(string(d), ".")
	return s != "" && strings.Contains(strings.ToLower(s), strings.ToLower(domain))
}

// PrincipalRef identifies either a machine principal ('<shortHost>$'@REALM) or
// a gMSA service principal ('<gmsaAccountName>$'@REALM).
type PrincipalRef struct {
	ShortHost       string
	GMSAAccountName string
	Realm           string
}

// MachinePrincipal builds a PrincipalRef for the host's machine account,
// truncating shortHost to HostNameLengthLimit per the AD NetBIOS limit.
// truncated reports whether truncation occurred, so callers can log a
// warning without this package depending on a logger.
func MachinePrincipal(shortHost, realm string) (ref PrincipalRef, truncated bool) {
	h := shortHost
	if len(h) > HostNameLengthLimit {
		h = h[:HostNameLengthLimit]
		truncated = true
	}
	return PrincipalRef{ShortHost: h, Realm: strings.ToUpper(realm)}, truncated
}

// GMSAPrincipal builds a PrincipalRef for a gMSA service account.
func GMSAPrincipal(gmsaAccountName, realm string) PrincipalRef {
	return PrincipalRef{GMSAAccountName: gmsaAccountName, Realm: strings.ToUpper(realm)}
}

// String renders the canonical principal name, e.g. 'webapp01$'@CONTOSO.COM.
func (p PrincipalRef) String() string {
	name := p.GMSAAccountName
	if name == "" {
		name = p.ShortHost
	}
	return fmt.Sprintf("'%s$'@%s", name, p.Realm)
}
