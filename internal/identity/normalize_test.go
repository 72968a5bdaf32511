package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestNormalize_CaseAndWhitespaceVariants(t *testing.T) {
	a := model.LeadRecord{FirstName: "Jane", LastName: "Doe", RawEmail: "Jane.Doe@Example.com"}
	b := model.LeadRecord{FirstName: " jane ", LastName: "DOE", RawEmail: "jane.doe@example.com "}

	assert.Equal(t, Normalize(a), Normalize(b))
	assert.Equal(t, Key("example.com|jane doe"), Normalize(a))
}

func TestNormalize_DomainPreferredOverCompany(t *testing.T) {
	rec := model.LeadRecord{
		FirstName: "Sam",
		LastName:  "Lee",
		RawEmail:  "sam@acme.io",
		Company:   "Acme Incorporated",
	}
	assert.Equal(t, Key("acme.io|sam lee"), Normalize(rec))
}

func TestNormalize_FallsBackToDomainField(t *testing.T) {
	rec := model.LeadRecord{FirstName: "Sam", LastName: "Lee", Domain: "ACME.io"}
	assert.Equal(t, Key("acme.io|sam lee"), Normalize(rec))
}

func TestNormalize_FallsBackToCompany(t *testing.T) {
	rec := model.LeadRecord{FirstName: "Sam", LastName: "Lee", Company: "  Acme   Widgets "}
	assert.Equal(t, Key("acme widgets|sam lee"), Normalize(rec))
}

func TestNormalize_BestEffortOnMissingFields(t *testing.T) {
	// Company alone still produces a usable key.
	rec := model.LeadRecord{Company: "Acme"}
	assert.Equal(t, Key("acme|"), Normalize(rec))

	// Even a fully empty record gets a (degenerate) key rather than an error.
	assert.Equal(t, Key("|"), Normalize(model.LeadRecord{}))
}

func TestNormalize_MalformedEmailIgnored(t *testing.T) {
	rec := model.LeadRecord{FirstName: "Sam", LastName: "Lee", RawEmail: "not-an-email", Company: "Acme"}
	assert.Equal(t, Key("acme|sam lee"), Normalize(rec))

	rec.RawEmail = "trailing@"
	assert.Equal(t, Key("acme|sam lee"), Normalize(rec))
}

func TestNormalize_Idempotent(t *testing.T) {
	rec := model.LeadRecord{FirstName: "Ana", LastName: "Gomez", RawEmail: "ANA@Example.COM"}
	k1 := Normalize(rec)
	k2 := Normalize(rec)
	assert.Equal(t, k1, k2)
}
