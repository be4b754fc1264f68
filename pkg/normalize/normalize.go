// Package normalize provides pure normalization and similarity helpers used
// by entity resolution, domain matching and fact keying. Nothing here touches
// storage or the network.
package normalize

import (
	"strings"
	"unicode"
)

// corporateSuffixes are trailing tokens stripped from organization names
// before matching. "Acme Labs Inc" and "Acme" must normalize the same way.
var corporateSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"llc":          true,
	"llp":          true,
	"ltd":          true,
	"limited":      true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
	"labs":         true,
	"lab":          true,
	"gmbh":         true,
	"holdings":     true,
	"group":        true,
	"ventures":     true,
	"capital":      true,
	"partners":     true,
}

// Email lower-cases and trims an email address. It returns "" for strings
// that cannot be an address (no "@" or empty local/domain part), so callers
// can treat the result as the dedup key directly.
func Email(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return ""
	}
	return s
}

// EmailDomain extracts the normalized domain from an email address, or ""
// when the input is not an address.
func EmailDomain(raw string) string {
	s := Email(raw)
	if s == "" {
		return ""
	}
	return s[strings.LastIndex(s, "@")+1:]
}

// Domain lower-cases and trims a bare domain, stripping a leading "www.".
func Domain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "www.")
	return strings.Trim(s, ".")
}

// DomainLabel returns the first label of a domain ("acme" for "acme.com").
func DomainLabel(domain string) string {
	d := Domain(domain)
	if i := strings.Index(d, "."); i > 0 {
		return d[:i]
	}
	return d
}

// CanonicalKey collapses a name to lower-case alphanumerics. It is the
// organization dedup key, insensitive to punctuation and spacing.
func CanonicalKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// OrgTokens lower-cases an organization name, strips non-alphanumerics and
// drops common corporate suffixes, returning the remaining tokens in order.
func OrgTokens(name string) []string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if corporateSuffixes[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		// Suffix-only names ("The Co") keep their raw tokens rather than
		// normalizing to nothing.
		return fields
	}
	return tokens
}

// OrgName joins the normalized organization tokens into a single string.
func OrgName(name string) string {
	return strings.Join(OrgTokens(name), "")
}

// PrimaryWord picks the token used for domain matching: the first token of
// length >= 4, else the first token.
func PrimaryWord(name string) string {
	tokens := OrgTokens(name)
	if len(tokens) == 0 {
		return ""
	}
	for _, t := range tokens {
		if len(t) >= 4 {
			return t
		}
	}
	return tokens[0]
}

// Similarity scores how alike two strings are in [0,1], combining shared
// prefix length with edit distance. Equal strings score 1.0.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	prefixScore := float64(prefix) / float64(longest)

	editScore := 1 - float64(levenshtein(a, b))/float64(longest)
	if editScore < 0 {
		editScore = 0
	}

	if prefixScore > editScore {
		return prefixScore
	}
	return editScore
}

// levenshtein computes the edit distance between two strings with the
// two-row dynamic program.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
