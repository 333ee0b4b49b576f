package domain

// TitleFieldName is the form field every listing type derives its
// display title from.
const TitleFieldName = "listing_title"

// TypeSchema describes the editable form surface of one listing type.
// Fields is ordered the way the form renders them; AttachmentField is
// the single field accepting a file upload.
type TypeSchema struct {
	Category        string
	Fields          []string
	AttachmentField string
}

// HasField reports whether name belongs to the schema.
func (s TypeSchema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

var typeSchemas = map[ListingType]TypeSchema{
	ListingTypeShareIssue: {
		Category: "share-issues",
		Fields: []string{
			"listing_title",
			"company_name",
			"website_url",
			"founding_year",
			"classification",
			"industry",
			"location",
			"location_city",
			"headcount",
			"listing_body",
			"revenue",
			"latest_result",
			"targets",
			"valuation",
			"issue_size",
			"minimum_investment",
			"maximum_investment",
			"issue_share_count",
			"pre_issue_share_count",
			"issue_state",
			"hiring_note",
			"image",
			"video_pitch",
			"marketing_material_file",
			"marketing_material_name",
			"additional_info",
		},
		AttachmentField: "marketing_material_file",
	},
	ListingTypeShareMarketplace: {
		Category: "share-marketplace",
		Fields: []string{
			"listing_title",
			"company_name",
			"website_url",
			"founding_year",
			"classification",
			"industry",
			"location",
			"location_city",
			"headcount",
			"listing_body",
			"latest_revenue",
			"latest_result",
			"trading_restrictions",
			"trading_restrictions_info",
			"shares_for_sale_count",
			"ownership_share",
			"valuation",
			"asking_price",
			"image",
			"marketing_material_file",
			"marketing_material_name",
			"additional_info",
		},
		AttachmentField: "marketing_material_file",
	},
	ListingTypePromissoryNote: {
		Category: "promissory-notes",
		Fields: []string{
			"listing_title",
			"company_name",
			"website_url",
			"founding_year",
			"classification",
			"industry",
			"location",
			"location_city",
			"headcount",
			"listing_body",
			"revenue",
			"latest_result",
			"financial_state",
			"loan_total",
			"note_type",
			"minimum_subscription",
			"maturity_date",
			"loan_term",
			"interest_type",
			"nominal_interest",
			"interest_period",
			"payment_frequency",
			"guarantees_collateral",
			"seniority",
			"rights_restrictions",
			"conversion_window",
			"conversion_method",
			"conversion_pricing",
			"conversion_price_fixed",
			"conversion_price_discount",
			"conversion_valuation_cap",
			"conversion_exit_triggers",
			"conversion_outcome",
			"conversion_share_class",
			"share_voting_rights",
			"share_dividend_rights",
			"other_restrictions",
			"dilution_effect",
			"other_loans",
			"loan_risks",
			"other_terms",
			"note_state",
			"image",
			"video_pitch",
			"marketing_material_file",
			"marketing_material_name",
			"additional_info",
		},
		AttachmentField: "marketing_material_file",
	},
}

// SchemaForType returns the form schema for a listing type.
func SchemaForType(t ListingType) (TypeSchema, bool) {
	s, ok := typeSchemas[t]
	return s, ok
}

// CategoryForType maps a listing type to the category slug it
// publishes into. Empty when the type is unknown.
func CategoryForType(t ListingType) string {
	return typeSchemas[t].Category
}

// TypeForCategory is the inverse mapping used when only the stored
// category survives on an older record.
func TypeForCategory(category string) (ListingType, bool) {
	for t, s := range typeSchemas {
		if s.Category == category {
			return t, true
		}
	}
	return "", false
}
