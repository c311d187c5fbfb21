package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/prospect-bridge/internal/entity"
)

func TestExtract_Layouts(t *testing.T) {
	cases := []struct {
		name  string
		event map[string]any
		want  Identity
	}{
		{
			name: "heyreach v1 prospect",
			event: map[string]any{"prospect": map[string]any{
				"email": "ada@example.com", "firstName": "Ada", "lastName": "Lovelace",
				"linkedinUrl": "https://linkedin.com/in/ada", "companyName": "Engines",
			}},
			want: Identity{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", LinkedInURL: "https://linkedin.com/in/ada", Company: "Engines"},
		},
		{
			name: "heyreach v2 snake case",
			event: map[string]any{"lead": map[string]any{
				"email_address": "grace@example.com", "first_name": "Grace", "last_name": "Hopper", "profile_url": "https://linkedin.com/in/grace",
			}},
			want: Identity{Email: "grace@example.com", FirstName: "Grace", LastName: "Hopper", LinkedInURL: "https://linkedin.com/in/grace"},
		},
		{
			name: "heyreach v2 camel case",
			event: map[string]any{"lead": map[string]any{
				"emailAddress": "alan@example.com", "firstName": "Alan", "lastName": "Turing", "companyName": "Bletchley",
			}},
			want: Identity{Email: "alan@example.com", FirstName: "Alan", LastName: "Turing", Company: "Bletchley"},
		},
		{
			name:  "flat keys",
			event: map[string]any{"email": "a@x.com", "firstName": "A", "lastName": "B", "phone": "+16502530000"},
			want:  Identity{Email: "a@x.com", FirstName: "A", LastName: "B", Phone: "+16502530000"},
		},
		{
			name:  "full name split",
			event: map[string]any{"contact": map[string]any{"name": "Katherine G Johnson", "email": "k@example.com"}},
			want:  Identity{Email: "k@example.com", FirstName: "Katherine", LastName: "G Johnson"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Extract(tc.event))
		})
	}
}

func TestExtract_Precedence(t *testing.T) {
	event := map[string]any{
		"email":    "flat@example.com",
		"lead":     map[string]any{"email": "lead@example.com"},
		"prospect": map[string]any{"email": "  "},
	}
	// blank values fall through to the next rule
	assert.Equal(t, "lead@example.com", Extract(event).Email)

	event["prospect"] = map[string]any{"email": "prospect@example.com"}
	assert.Equal(t, "prospect@example.com", Extract(event).Email)
}

func TestExtractionRule_NonStringLeaves(t *testing.T) {
	event := map[string]any{
		"phone":   float64(16502530000),
		"company": map[string]any{"name": "nested"},
		"lead":    "not-an-object",
	}
	assert.Equal(t, "16502530000", rule("phone").Extract(event))
	assert.Equal(t, "", rule("company").Extract(event))
	assert.Equal(t, "", rule("lead.email").Extract(event))
	assert.Equal(t, "", rule("missing.deep.path").Extract(event))
}

func TestExtractSourceCampaign(t *testing.T) {
	cases := []struct {
		name  string
		event map[string]any
		want  SourceCampaign
	}{
		{"nested", map[string]any{"campaign": map[string]any{"id": float64(42), "name": " Spring "}}, SourceCampaign{ID: "42", Name: "Spring"}},
		{"flat", map[string]any{"campaignId": "c-1", "campaignName": "Flat"}, SourceCampaign{ID: "c-1", Name: "Flat"}},
		{"nested wins", map[string]any{"campaign": map[string]any{"id": "n"}, "campaignId": "f"}, SourceCampaign{ID: "n"}},
		{"absent", map[string]any{"email": "a@x.com"}, SourceCampaign{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractSourceCampaign(tc.event))
		})
	}
}

func TestIdentityResolver_NormalisesFields(t *testing.T) {
	resolver := NewIdentityResolver(&fakeLeads{}, "us", nil)
	id, err := resolver.Resolve(context.Background(), map[string]any{
		"email":       " Ada@Bücher.Example ",
		"firstName":   "Ada",
		"linkedinUrl": "https://linkedin.com/in/ada/",
		"phone":       "(650) 253-0000",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@xn--bcher-kva.example", id.Email)
	assert.Equal(t, "https://linkedin.com/in/ada", id.LinkedInURL)
	assert.Equal(t, "+16502530000", id.Phone)
}

func TestIdentityResolver_DropsUnparseablePhone(t *testing.T) {
	resolver := NewIdentityResolver(nil, "US", nil)
	id, err := resolver.Resolve(context.Background(), map[string]any{"email": "a@x.com", "phone": "call me"})
	require.NoError(t, err)
	assert.Empty(t, id.Phone)
}

func TestIdentityResolver_RecoveryPrefersLinkedIn(t *testing.T) {
	leads := &fakeLeads{
		byLinkedIn: map[string]entity.Lead{
			"https://linkedin.com/in/ada": {Email: "linkedin@example.com", Company: "Engines", Phone: "+16502530000"},
		},
		byName: map[string]entity.Lead{
			"Ada Lovelace": {Email: "name@example.com"},
		},
	}
	resolver := NewIdentityResolver(leads, "US", nil)

	id, err := resolver.Resolve(context.Background(), map[string]any{"prospect": map[string]any{
		"firstName": "Ada", "lastName": "Lovelace", "linkedinUrl": "https://linkedin.com/in/ada/",
	}})
	require.NoError(t, err)
	assert.Equal(t, "linkedin@example.com", id.Email)
	assert.Equal(t, "Engines", id.Company)
	assert.Equal(t, "+16502530000", id.Phone)
	assert.Equal(t, []string{"linkedin"}, leads.calls)
}

func TestIdentityResolver_RecoveryFallsBackToName(t *testing.T) {
	leads := &fakeLeads{
		byName: map[string]entity.Lead{
			"Ada Lovelace": {Email: "Name@Example.com", LinkedInURL: "https://linkedin.com/in/ada/"},
		},
	}
	resolver := NewIdentityResolver(leads, "US", nil)

	id, err := resolver.Resolve(context.Background(), map[string]any{
		"email": "not-an-email", "firstName": "Ada", "lastName": "Lovelace", "linkedinUrl": "https://linkedin.com/in/other",
	})
	require.NoError(t, err)
	assert.Equal(t, "name@example.com", id.Email)
	assert.Equal(t, "https://linkedin.com/in/other", id.LinkedInURL, "event values are not overwritten")
	assert.Equal(t, []string{"linkedin", "name"}, leads.calls)
}

func TestIdentityResolver_FirstNameOnlyWithoutLastName(t *testing.T) {
	leads := &fakeLeads{
		byFirstName: map[string]entity.Lead{"Ada": {Email: "ada@example.com", LastName: "Lovelace"}},
	}
	resolver := NewIdentityResolver(leads, "US", nil)

	id, err := resolver.Resolve(context.Background(), map[string]any{"firstName": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "Lovelace", id.LastName)

	leads.calls = nil
	_, err = resolver.Resolve(context.Background(), map[string]any{"firstName": "Ada", "lastName": "Byron"})
	assert.ErrorIs(t, err, ErrUnresolvableIdentity)
	assert.Equal(t, []string{"name"}, leads.calls, "first-name lookup is skipped when a last name is present")
}

func TestIdentityResolver_Unresolvable(t *testing.T) {
	resolver := NewIdentityResolver(&fakeLeads{}, "US", nil)
	_, err := resolver.Resolve(context.Background(), map[string]any{"event": "connection_accepted"})
	assert.ErrorIs(t, err, ErrUnresolvableIdentity)
}

func TestIdentityResolver_StoreErrorDuringRecovery(t *testing.T) {
	storeErr := errors.New("connection refused")
	resolver := NewIdentityResolver(&fakeLeads{err: storeErr}, "US", nil)
	_, err := resolver.Resolve(context.Background(), map[string]any{"linkedinUrl": "https://linkedin.com/in/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrUnresolvableIdentity)
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"USER@Example.COM":   "user@example.com",
		"user@localhost":     "",
		"no-at-sign.com":     "",
		"a@b@example.com":    "",
		"@example.com":       "",
		"user@-bad-.example": "",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeEmail(in), "input %q", in)
	}
}
