package masking

import (
	"net/url"
	"slices"
	"strings"
)

const (
	// DefaultMaskString is the default replacement string for masked values
	DefaultMaskString = "*******"
	// DefaultMinLength is the minimum value length to mask
	DefaultMinLength = 3
)

// Masker replaces known secret values in text.
type Masker struct {
	values []string // longest first
}

// NewMasker creates a masker for the given secrets. Values shorter than
// DefaultMinLength are ignored.
func NewMasker(secrets ...string) *Masker {
	seen := make(map[string]struct{}, len(secrets))
	var values []string
	for _, s := range secrets {
		if len(s) < DefaultMinLength {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
	}
	// Longest first so a secret containing another is replaced whole.
	slices.SortFunc(values, func(a, b string) int { return len(b) - len(a) })
	return &Masker{values: values}
}

// MaskString replaces sensitive values in the input string
func (m *Masker) MaskString(input string) string {
	if m == nil || len(m.values) == 0 {
		return input
	}
	for _, val := range m.values {
		input = strings.ReplaceAll(input, val, DefaultMaskString)
	}
	return input
}

// MaskBytes replaces sensitive values in the input bytes
func (m *Masker) MaskBytes(input []byte) []byte {
	return []byte(m.MaskString(string(input)))
}

// MaskURL removes userinfo from a remote URL so it is safe to log.
// scp-like git addresses (git@host:path) carry no secret and are returned
// unchanged.
func MaskURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		// Unparsable URLs may still embed credentials before the host.
		scheme, rest, _ := strings.Cut(raw, "://")
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			rest = rest[at+1:]
		}
		return scheme + "://" + rest
	}
	if u.User == nil {
		return raw
	}
	if u.User.Username() == "git" {
		if _, hasPass := u.User.Password(); !hasPass {
			return raw
		}
	}
	u.User = nil
	return u.String()
}
