package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/repository"
)

// ErrUnresolvableIdentity is returned when no email can be extracted or recovered.
var ErrUnresolvableIdentity = errors.New("unable to resolve prospect email")

// Identity is the canonical contact extracted from an inbound event.
type Identity struct {
	FirstName   string
	LastName    string
	Email       string
	LinkedInURL string
	Company     string
	Phone       string
}

// ExtractionRule reads a single attribute from a dotted JSON path.
type ExtractionRule struct {
	Name string
	Path []string
}

func rule(name string) ExtractionRule {
	return ExtractionRule{Name: name, Path: strings.Split(name, ".")}
}

// Extract returns the trimmed string at the rule path, or "" when absent.
func (r ExtractionRule) Extract(event map[string]any) string {
	var current any = event
	for _, key := range r.Path {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[key]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// firstMatch applies rules in order and returns the first non-blank value.
func firstMatch(rules []ExtractionRule, event map[string]any) string {
	for _, r := range rules {
		if val := r.Extract(event); val != "" {
			return val
		}
	}
	return ""
}

// Extraction rules per attribute, highest precedence first. HeyReach v1 nests
// the contact under "prospect", v2 under "lead" with either key casing.
var (
	EmailRules = []ExtractionRule{
		rule("prospect.email"),
		rule("lead.email"),
		rule("lead.email_address"),
		rule("lead.emailAddress"),
		rule("contact.email"),
		rule("email"),
		rule("emailAddress"),
		rule("email_address"),
	}
	FirstNameRules = []ExtractionRule{
		rule("prospect.firstName"),
		rule("prospect.first_name"),
		rule("lead.first_name"),
		rule("lead.firstName"),
		rule("contact.firstName"),
		rule("contact.first_name"),
		rule("firstName"),
		rule("first_name"),
	}
	LastNameRules = []ExtractionRule{
		rule("prospect.lastName"),
		rule("prospect.last_name"),
		rule("lead.last_name"),
		rule("lead.lastName"),
		rule("contact.lastName"),
		rule("contact.last_name"),
		rule("lastName"),
		rule("last_name"),
	}
	FullNameRules = []ExtractionRule{
		rule("prospect.fullName"),
		rule("prospect.full_name"),
		rule("lead.full_name"),
		rule("lead.fullName"),
		rule("contact.fullName"),
		rule("contact.name"),
		rule("fullName"),
		rule("full_name"),
		rule("name"),
	}
	LinkedInRules = []ExtractionRule{
		rule("prospect.linkedinUrl"),
		rule("prospect.linkedin_url"),
		rule("prospect.profileUrl"),
		rule("lead.linkedin_url"),
		rule("lead.linkedinUrl"),
		rule("lead.profile_url"),
		rule("lead.profileUrl"),
		rule("contact.linkedinUrl"),
		rule("contact.linkedin_url"),
		rule("linkedinUrl"),
		rule("linkedin_url"),
		rule("profileUrl"),
	}
	CompanyRules = []ExtractionRule{
		rule("prospect.companyName"),
		rule("prospect.company"),
		rule("lead.company_name"),
		rule("lead.companyName"),
		rule("lead.company"),
		rule("contact.companyName"),
		rule("contact.company"),
		rule("companyName"),
		rule("company"),
	}
	PhoneRules = []ExtractionRule{
		rule("prospect.phone"),
		rule("prospect.phoneNumber"),
		rule("lead.phone"),
		rule("lead.phone_number"),
		rule("lead.phoneNumber"),
		rule("contact.phone"),
		rule("phone"),
		rule("phoneNumber"),
	}
	SourceCampaignIDRules = []ExtractionRule{
		rule("campaign.id"),
		rule("campaign.campaignId"),
		rule("campaignId"),
	}
	SourceCampaignNameRules = []ExtractionRule{
		rule("campaign.name"),
		rule("campaign.campaignName"),
		rule("campaignName"),
	}
)

// SourceCampaign identifies the HeyReach campaign an event came from.
type SourceCampaign struct {
	ID   string
	Name string
}

// ExtractSourceCampaign applies the source campaign rules. Missing values are "".
func ExtractSourceCampaign(event map[string]any) SourceCampaign {
	return SourceCampaign{
		ID:   firstMatch(SourceCampaignIDRules, event),
		Name: firstMatch(SourceCampaignNameRules, event),
	}
}

// LeadFinder is the subset of the lead directory used for email recovery.
type LeadFinder interface {
	FindByLinkedIn(ctx context.Context, linkedInURL string) (*entity.Lead, error)
	FindByName(ctx context.Context, firstName, lastName string) (*entity.Lead, error)
	FindByFirstName(ctx context.Context, firstName string) (*entity.Lead, error)
}

// IdentityResolver turns a decoded webhook body into an Identity.
type IdentityResolver struct {
	leads       LeadFinder
	phoneRegion string
	logger      *zap.Logger
}

// NewIdentityResolver constructs an IdentityResolver.
func NewIdentityResolver(leads LeadFinder, phoneRegion string, logger *zap.Logger) *IdentityResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	region := strings.ToUpper(strings.TrimSpace(phoneRegion))
	if region == "" {
		region = defaultPhoneRegion
	}
	return &IdentityResolver{leads: leads, phoneRegion: region, logger: logger}
}

// Resolve extracts the identity and, when the event carries no valid email,
// recovers one from the lead directory.
func (r *IdentityResolver) Resolve(ctx context.Context, event map[string]any) (Identity, error) {
	id := Extract(event)
	id.Email = NormalizeEmail(id.Email)
	id.LinkedInURL = repository.NormalizeLinkedIn(id.LinkedInURL)
	id.Phone = NormalizePhone(id.Phone, r.phoneRegion)

	if id.Email != "" {
		return id, nil
	}

	lead, via, err := r.recoverLead(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if lead == nil {
		return Identity{}, ErrUnresolvableIdentity
	}

	id.Email = NormalizeEmail(lead.Email)
	if id.Email == "" {
		return Identity{}, ErrUnresolvableIdentity
	}
	backfill(&id, lead, r.phoneRegion)

	r.logger.Info("recovered prospect email from lead directory",
		zap.String("email", id.Email),
		zap.String("matched_by", via),
	)
	return id, nil
}

// Extract applies the extraction rules without normalisation or recovery.
func Extract(event map[string]any) Identity {
	id := Identity{
		FirstName:   firstMatch(FirstNameRules, event),
		LastName:    firstMatch(LastNameRules, event),
		Email:       firstMatch(EmailRules, event),
		LinkedInURL: firstMatch(LinkedInRules, event),
		Company:     firstMatch(CompanyRules, event),
		Phone:       firstMatch(PhoneRules, event),
	}

	if id.FirstName == "" {
		if full := firstMatch(FullNameRules, event); full != "" {
			first, rest, _ := strings.Cut(full, " ")
			id.FirstName = first
			if id.LastName == "" {
				id.LastName = strings.TrimSpace(rest)
			}
		}
	}
	return id
}

// recoverLead consults the lead directory: linkedin, then first and last name,
// then first name alone when the event has no last name.
func (r *IdentityResolver) recoverLead(ctx context.Context, id Identity) (*entity.Lead, string, error) {
	if r.leads == nil {
		return nil, "", nil
	}

	type lookup struct {
		name string
		ok   bool
		find func() (*entity.Lead, error)
	}
	lookups := []lookup{
		{"linkedin", id.LinkedInURL != "", func() (*entity.Lead, error) {
			return r.leads.FindByLinkedIn(ctx, id.LinkedInURL)
		}},
		{"name", id.FirstName != "" && id.LastName != "", func() (*entity.Lead, error) {
			return r.leads.FindByName(ctx, id.FirstName, id.LastName)
		}},
		{"first_name", id.FirstName != "" && id.LastName == "", func() (*entity.Lead, error) {
			return r.leads.FindByFirstName(ctx, id.FirstName)
		}},
	}

	for _, l := range lookups {
		if !l.ok {
			continue
		}
		lead, err := l.find()
		if err != nil {
			if errors.Is(err, repository.ErrLeadNotFound) {
				continue
			}
			return nil, "", fmt.Errorf("recover email by %s: %w", l.name, err)
		}
		return lead, l.name, nil
	}
	return nil, "", nil
}

func backfill(id *Identity, lead *entity.Lead, region string) {
	if id.FirstName == "" {
		id.FirstName = strings.TrimSpace(lead.FirstName)
	}
	if id.LastName == "" {
		id.LastName = strings.TrimSpace(lead.LastName)
	}
	if id.LinkedInURL == "" {
		id.LinkedInURL = repository.NormalizeLinkedIn(lead.LinkedInURL)
	}
	if id.Company == "" {
		id.Company = strings.TrimSpace(lead.Company)
	}
	if id.Phone == "" {
		id.Phone = NormalizePhone(lead.Phone, region)
	}
}
