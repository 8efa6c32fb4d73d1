// Package kerbtypes holds the wire- and disk-level data model shared by every
// stage of the credential-lifecycle engine: domain/DC/principal identifiers,
// the secure secret buffer, the gMSA password blob layout, and lease metadata.
package kerbtypes

// GMSAPasswordSize is the fixed length, in bytes, of the current-password
// window of the decoded blob, which is what the UTF-16 decoder reads on
// stdin before handing the decoded password to kinit. AD dictates
// this value; it must not be hardcoded anywhere outside this file.
const GMSAPasswordSize = 256

// HostNameLengthLimit is the AD NetBIOS machine-name limit. Host names longer
// than this are truncated (with a warning) when building a machine principal.
const HostNameLengthLimit = 15

// RenewTicketHours is the default width of the renewal window: any ticket
// whose "renew until" time is within this many hours of now is eligible for
// renewal.
const RenewTicketHours = 1

// DefaultKrbRoot is the default Lease Store root directory.
const DefaultKrbRoot = "/var/credentials_fetcher/krb_dir"

// MetadataSuffix is the filename suffix that marks a lease-directory entry as
// LeaseMetadata JSON rather than a credential cache file.
const MetadataSuffix = "_metadata"
