package classify

import "regexp"

// Redaction rules applied to every message before it is logged or surfaced.
// Bare token shapes ("Bearer ...", "sk-...") and keyed assignments
// ("api_key: ...", "password=...") are both covered.
var redactTokens = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{8,}\b`),
}

var redactKeyed = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|credential|authorization)\s*[:=]\s*"?[^\s",]+"?`)

const redactedMarker = "[REDACTED]"

// Redact masks sensitive substrings in s. Token shapes are masked before the
// keyed pass: in "Authorization: Bearer <token>" the keyed value regex stops
// at the whitespace after "Bearer", so the token must already be gone by
// then. The keyed form keeps the key name so operators can still tell what
// was removed.
func Redact(s string) string {
	if s == "" {
		return s
	}
	out := s
	for _, re := range redactTokens {
		out = re.ReplaceAllString(out, redactedMarker)
	}
	return redactKeyed.ReplaceAllString(out, "$1="+redactedMarker)
}
