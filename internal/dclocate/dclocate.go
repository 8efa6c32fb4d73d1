// Package dclocate implements the DC Locator: given a domain name, it
// returns an ordered list of candidate Domain Controller FQDNs via DNS
// A-record lookup and reverse PTR resolution, honoring a config override.
package dclocate

import (
	"context"
	"regexp"
	"strings"

	"github.com/miekg/dns"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
)

// ipv4Re is the strict IPv4 octet shape spec.md §4.2 requires before an A
// record is trusted.
var ipv4Re = regexp.MustCompile(`^(([0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])\.){3}([0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])$`)

// Resolver is the subset of dns.Client this package needs, so tests can
// substitute a fixture without a live DNS server.
type Resolver interface {
	Exchange(m *dns.Msg, addr string) (*dns.Msg, error)
}

// Locator finds candidate DCs for a domain.
type Locator struct {
	resolver   Resolver
	nameserver string
	override   string
}

// New builds a Locator. nameserver is the DNS server address (host:port)
// to query; override, if non-empty, is the CF_DOMAIN_CONTROLLER value and
// short-circuits DNS entirely.
func New(resolver Resolver, nameserver, override string) *Locator {
	return &Locator{resolver: resolver, nameserver: nameserver, override: override}
}

// Locate returns the ordered list of candidate DC FQDNs for domain.
func (l *Locator) Locate(ctx context.Context, domain string) ([]string, error) {
	if l.override != "" {
		return []string{l.override}, nil
	}

	ips, err := l.lookupA(domain)
	if err != nil {
		return nil, err
	}

	var endpoints []string
	for _, ip := range ips {
		fqdn, ok, err := l.lookupPTR(ip, domain)
		if err != nil {
			continue
		}
		if ok {
			endpoints = append(endpoints, fqdn)
		}
	}

	if len(endpoints) == 0 {
		return nil, cferrors.New(cferrors.KindDNSFailure, "no viable domain controller found")
	}
	return endpoints, nil
}

func (l *Locator) lookupA(domain string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)

	resp, err := l.resolver.Exchange(m, l.nameserver)
	if err != nil {
		return nil, cferrors.Wrap(cferrors.KindDNSFailure, "A record lookup failed", err)
	}

	var ips []string
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		ipStr := a.A.String()
		if !ipv4Re.MatchString(ipStr) {
			return nil, cferrors.New(cferrors.KindDNSFailure, "bad_dns_response: non-IPv4 A record")
		}
		ips = append(ips, ipStr)
	}
	if len(ips) == 0 {
		return nil, cferrors.New(cferrors.KindDNSFailure, "no A records for domain")
	}
	return ips, nil
}

// lookupPTR resolves ip's reverse DNS name and reports whether it contains
// domain (case-insensitive, trailing dot stripped) and is thus accepted.
func (l *Locator) lookupPTR(ip, domain string) (string, bool, error) {
	reverse, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", false, err
	}

	m := new(dns.Msg)
	m.SetQuestion(reverse, dns.TypePTR)

	resp, err := l.resolver.Exchange(m, l.nameserver)
	if err != nil {
		return "", false, err
	}

	for _, rr := range resp.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		fqdn := strings.TrimSuffix(ptr.Ptr, ".")
		if strings.Contains(strings.ToLower(fqdn), strings.ToLower(domain)) {
			return fqdn, true, nil
		}
	}
	return "", false, nil
}
