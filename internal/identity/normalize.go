// Package identity derives stable dedupe keys from raw lead records.
package identity

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Key is a normalized composite identity for a lead. Two records with equal
// keys refer to the same real-world lead and must be merged within a run.
type Key string

var folder = cases.Fold()

// Normalize derives a Key from a record. It never fails: missing fields
// degrade to a best-effort key (company alone, or name alone) so every
// record gets some dedupe identity. Case and surrounding/internal whitespace
// variants of the same input normalize to the same key.
func Normalize(rec model.LeadRecord) Key {
	org := emailDomain(rec.RawEmail)
	if org == "" {
		org = canon(rec.Domain)
	}
	if org == "" {
		org = canon(rec.Company)
	}

	name := canon(rec.FirstName + " " + rec.LastName)

	return Key(org + "|" + name)
}

// emailDomain extracts and canonicalizes the domain part of an email address.
// Returns "" when the input does not look like an email.
func emailDomain(email string) string {
	email = canon(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// canon case-folds and collapses all whitespace runs to single spaces.
func canon(s string) string {
	return strings.Join(strings.Fields(folder.String(s)), " ")
}
