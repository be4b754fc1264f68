// Package domainmatch maps an organization name to its likely communication
// domain using a corpus of observed sender addresses. The ranking is a fixed
// rule precedence over normalized names and domain labels; identical corpus
// and name always yield the same ranking.
package domainmatch

import (
	"sort"
	"strings"

	"github.com/soundprediction/go-rolodex/pkg/normalize"
)

const (
	// AutoApplyThreshold is the minimum score at which a caller may apply
	// the top candidate without manual confirmation.
	AutoApplyThreshold = 0.9
	// SimilarityThreshold is the minimum fuzzy similarity for the fallback
	// rule to produce a candidate at all.
	SimilarityThreshold = 0.85
)

// blockedDomains are generic providers, groupware and widely-shared SaaS
// vendors. Many unrelated companies send mail from these, so they can never
// identify an organization.
var blockedDomains = map[string]bool{
	"gmail.com":         true,
	"googlemail.com":    true,
	"yahoo.com":         true,
	"outlook.com":       true,
	"hotmail.com":       true,
	"live.com":          true,
	"msn.com":           true,
	"aol.com":           true,
	"icloud.com":        true,
	"me.com":            true,
	"protonmail.com":    true,
	"proton.me":         true,
	"gmx.com":           true,
	"fastmail.com":      true,
	"hey.com":           true,
	"google.com":        true,
	"microsoft.com":     true,
	"docusign.net":      true,
	"docusign.com":      true,
	"salesforce.com":    true,
	"hubspot.com":       true,
	"hubspotemail.net":  true,
	"mailchimp.com":     true,
	"mailchimpapp.net":  true,
	"sendgrid.net":      true,
	"amazonses.com":     true,
	"calendly.com":      true,
	"zoom.us":           true,
	"intercom.io":       true,
	"intercom-mail.com": true,
	"zendesk.com":       true,
	"atlassian.com":     true,
	"atlassian.net":     true,
	"notion.so":         true,
	"slack.com":         true,
	"stripe.com":        true,
	"squarespace.com":   true,
	"substack.com":      true,
	"linkedin.com":      true,
	"twitter.com":       true,
	"x.com":             true,
	"facebookmail.com":  true,
	"github.com":        true,
}

// Sender is one observed sender record from the communication corpus.
type Sender struct {
	FromEmail string
	FromName  string
}

// Candidate is a ranked domain guess for an organization.
type Candidate struct {
	Domain string  `json:"domain"`
	Score  float64 `json:"score"`
	Rule   string  `json:"rule"`
}

// AutoApplicable reports whether a caller may apply the candidate without
// manual confirmation. Scores below the threshold are surfaced for review,
// never silently applied.
func (c Candidate) AutoApplicable() bool {
	return c.Score >= AutoApplyThreshold
}

// Blocked reports whether a domain is on the generic-provider block list.
func Blocked(domain string) bool {
	return blockedDomains[normalize.Domain(domain)]
}

// FindCandidates ranks the domains in the sender corpus by how likely each
// is the organization's own domain. Candidates are deduplicated by domain,
// keeping the highest score, and sorted by score descending then domain
// ascending for a deterministic order.
func FindCandidates(orgName string, senders []Sender) []Candidate {
	normalizedOrg := normalize.OrgName(orgName)
	primary := normalize.PrimaryWord(orgName)
	if normalizedOrg == "" {
		return nil
	}

	best := map[string]Candidate{}
	for _, sender := range senders {
		domain := normalize.EmailDomain(sender.FromEmail)
		if domain == "" || blockedDomains[domain] {
			continue
		}

		candidate, ok := scoreSender(normalizedOrg, primary, domain, sender.FromName)
		if !ok {
			continue
		}
		if prev, seen := best[domain]; !seen || candidate.Score > prev.Score {
			best[domain] = candidate
		}
	}

	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// scoreSender applies the rule precedence to one sender, highest rule first.
func scoreSender(normalizedOrg, primary, domain, displayName string) (Candidate, bool) {
	label := normalize.DomainLabel(domain)
	name := strings.ToLower(displayName)

	// (a) the domain label is exactly the primary word or the full
	// normalized name.
	if label == primary || label == normalizedOrg {
		return Candidate{Domain: domain, Score: 1.0, Rule: "label_exact"}, true
	}

	// (b) the label contains a sufficiently-long primary word.
	if len(primary) >= 5 && strings.Contains(label, primary) {
		return Candidate{Domain: domain, Score: 0.95, Rule: "label_contains"}, true
	}

	// (c) the display name mentions the organization.
	if name != "" {
		squashed := normalize.CanonicalKey(name)
		if strings.Contains(squashed, normalizedOrg) || (primary != "" && strings.Contains(squashed, primary)) {
			return Candidate{Domain: domain, Score: 0.9, Rule: "display_name_contains"}, true
		}
	}

	// (d) the display name leads with the primary word.
	if len(primary) >= 4 {
		fields := strings.Fields(name)
		if len(fields) > 0 && normalize.CanonicalKey(fields[0]) == primary {
			return Candidate{Domain: domain, Score: 0.85, Rule: "display_name_leads"}, true
		}
	}

	// (e) fuzzy similarity between the organization name and the label,
	// scaled down because it is the weakest signal.
	if sim := normalize.Similarity(normalizedOrg, label); sim >= SimilarityThreshold {
		return Candidate{Domain: domain, Score: sim * 0.9, Rule: "similarity"}, true
	}

	return Candidate{}, false
}
