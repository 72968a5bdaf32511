// Package validate performs structural checks on enriched records and
// merges duplicate identities within a batch.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
)

// disposableDomains are throwaway email providers never worth contacting.
var disposableDomains = []string{
	"tempmail.com", "guerrillamail.com", "mailinator.com",
	"10minutemail.com", "throwaway.email", "fakeinbox.com", "temp-mail.org",
	"yopmail.com", "maildrop.cc", "trashmail.com", "sharklasers.com",
}

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// domainRe requires an alphabetic TLD of at least two characters, so bare
// company names ("google") never reach a paid email-finder call.
var domainRe = regexp.MustCompile(`^[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// Config controls validation behavior.
type Config struct {
	// RequiredFields lists canonical fields every record must carry:
	// first_name, last_name, company, email, domain.
	RequiredFields []string

	// BlacklistDomains rejects records whose email domain matches (suffix
	// match, so "gmail.com" also covers subdomains). Disposable providers
	// are always included.
	BlacklistDomains []string

	// MinEmailConfidence strips enriched emails below this confidence
	// instead of rejecting the record (0 disables).
	MinEmailConfidence int
}

// Outcome separates the surviving records from the rejects. Rejected
// records always carry a reason for audit; they are never silently dropped.
type Outcome struct {
	Accepted []model.LeadRecord
	Rejected []model.RejectedRecord
}

// Run validates every record in the run and merges duplicates, updating the
// run's stats. Accepted records keep first-seen input order.
func Run(run *model.BatchRun, cfg Config) Outcome {
	blacklist := append([]string{}, disposableDomains...)
	blacklist = append(blacklist, cfg.BlacklistDomains...)

	var out Outcome
	firstAt := make(map[identity.Key]int) // key -> index into out.Accepted

	for _, rec := range run.Records {
		stripLowConfidenceEmail(&rec, cfg.MinEmailConfidence)

		if reason := check(rec, cfg.RequiredFields, blacklist); reason != "" {
			rec.FailureKind = model.ErrKindValidation
			rec.FailureReason = reason
			out.Rejected = append(out.Rejected, model.RejectedRecord{Record: rec, Reason: reason})
			run.Stats.Rejected++
			continue
		}

		key := identity.Normalize(rec)
		if at, seen := firstAt[key]; seen {
			out.Accepted[at] = merge(out.Accepted[at], rec)
			run.Stats.Deduped++
			zap.L().Debug("merged duplicate lead",
				zap.String("key", string(key)),
				zap.Int("row", rec.Provenance.RowIndex),
			)
			continue
		}
		firstAt[key] = len(out.Accepted)
		out.Accepted = append(out.Accepted, rec)
	}

	return out
}

// stripLowConfidenceEmail drops an enriched email that the provider itself
// was not confident about, rather than rejecting the whole record.
func stripLowConfidenceEmail(rec *model.LeadRecord, threshold int) {
	if threshold <= 0 || rec.Enrichment.Email == "" {
		return
	}
	if rec.Enrichment.EmailConfidence < threshold {
		zap.L().Debug("stripping low-confidence email",
			zap.String("email", rec.Enrichment.Email),
			zap.Int("confidence", rec.Enrichment.EmailConfidence),
			zap.Int("threshold", threshold),
		)
		rec.Enrichment.Email = ""
		rec.Enrichment.EmailConfidence = 0
	}
}

// check returns a rejection reason, or "" when the record passes.
func check(rec model.LeadRecord, required, blacklist []string) string {
	for _, f := range required {
		if fieldEmpty(rec, f) {
			return fmt.Sprintf("missing required field: %s", f)
		}
	}

	if last := effectiveName(rec.LastName); rec.LastName != "" && len(last) < 2 {
		return fmt.Sprintf("last name too short: %q", rec.LastName)
	}

	if domain := strings.TrimSpace(rec.Domain); domain != "" && !domainRe.MatchString(domain) {
		return fmt.Sprintf("invalid domain: %q", rec.Domain)
	}

	email := rec.BestEmail()
	if email != "" {
		if !emailRe.MatchString(email) {
			return fmt.Sprintf("invalid email syntax: %q", email)
		}
		domain := strings.ToLower(email[strings.LastIndexByte(email, '@')+1:])
		for _, bad := range blacklist {
			if domain == bad || strings.HasSuffix(domain, "."+bad) {
				return fmt.Sprintf("blacklisted email domain: %s", domain)
			}
		}
	}

	return ""
}

func fieldEmpty(rec model.LeadRecord, field string) bool {
	switch field {
	case "first_name":
		return strings.TrimSpace(rec.FirstName) == ""
	case "last_name":
		return strings.TrimSpace(rec.LastName) == ""
	case "company":
		return strings.TrimSpace(rec.Company) == ""
	case "email":
		return rec.BestEmail() == ""
	case "domain":
		return strings.TrimSpace(rec.Domain) == "" && rec.BestEmail() == ""
	default:
		return false
	}
}

// effectiveName strips dots and whitespace, the characters initials hide in.
func effectiveName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ".", ""))
}

// merge folds next into base. Base keeps its position (first-seen ordering)
// while conflicting values follow the most recent enrichment; a tie goes to
// next, the later row in the input sequence.
func merge(base, next model.LeadRecord) model.LeadRecord {
	nextWins := !next.EnrichedAt.Before(base.EnrichedAt)

	base.FirstName = pick(base.FirstName, next.FirstName, nextWins)
	base.LastName = pick(base.LastName, next.LastName, nextWins)
	base.Company = pick(base.Company, next.Company, nextWins)
	base.RawEmail = pick(base.RawEmail, next.RawEmail, nextWins)
	base.Domain = pick(base.Domain, next.Domain, nextWins)

	if nextWins {
		merged := next.Enrichment
		merged.FillFrom(base.Enrichment)
		base.Enrichment = merged
		base.EnrichedAt = next.EnrichedAt
		base.EnrichedBy = pick(base.EnrichedBy, next.EnrichedBy, true)
		base.Status = next.Status
		base.FailureKind = next.FailureKind
		base.FailureReason = next.FailureReason
	} else {
		base.Enrichment.FillFrom(next.Enrichment)
	}

	return base
}

// pick resolves a single field: union when one side is empty, otherwise the
// winning side's value.
func pick(a, b string, bWins bool) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if bWins {
		return b
	}
	return a
}
