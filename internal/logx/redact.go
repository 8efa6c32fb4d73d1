package logx

import "regexp"

// base64BlobRe catches long base64 runs — decoded password blobs and SPNEGO
// tokens alike — before they reach a log sink.
var base64BlobRe = regexp.MustCompile(`([A-Za-z0-9+/]{32,}={0,2})`)

// keyValueSecretRe catches "password: xxx" / "password=xxx" style fields a
// %v-formatted struct can leak, independent of whether the value happens to
// look like base64.
var keyValueSecretRe = regexp.MustCompile(`(?i)(password|secret|keytab)\s*[:=]\s*\S+`)

// Redact strips password- and blob-shaped material from a log line. It is
// intentionally conservative — a false positive (redacting something
// harmless) is acceptable, a false negative (leaking a secret) is not.
func Redact(s string) string {
	s = base64BlobRe.ReplaceAllString(s, "<redacted>")
	s = keyValueSecretRe.ReplaceAllString(s, "$1: <redacted>")
	return s
}
