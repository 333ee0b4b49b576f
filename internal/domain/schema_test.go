package domain

import "testing"

func TestSchemaForTypeCoversAllTypes(t *testing.T) {
	types := []ListingType{ListingTypeShareIssue, ListingTypeShareMarketplace, ListingTypePromissoryNote}
	for _, typ := range types {
		schema, ok := SchemaForType(typ)
		if !ok {
			t.Fatalf("missing schema for %s", typ)
		}
		if schema.Category == "" {
			t.Fatalf("empty category for %s", typ)
		}
		if len(schema.Fields) == 0 {
			t.Fatalf("empty field list for %s", typ)
		}
		if !schema.HasField(TitleFieldName) {
			t.Fatalf("schema for %s lacks title field", typ)
		}
		if schema.AttachmentField == "" || !schema.HasField(schema.AttachmentField) {
			t.Fatalf("schema for %s has invalid attachment field %q", typ, schema.AttachmentField)
		}
	}
}

func TestTypeForCategoryRoundTrip(t *testing.T) {
	for _, typ := range []ListingType{ListingTypeShareIssue, ListingTypeShareMarketplace, ListingTypePromissoryNote} {
		category := CategoryForType(typ)
		got, ok := TypeForCategory(category)
		if !ok || got != typ {
			t.Fatalf("category %q resolved to %q, want %q", category, got, typ)
		}
	}
	if _, ok := TypeForCategory("unknown"); ok {
		t.Fatal("expected unknown category to not resolve")
	}
}

func TestListingStatusPayable(t *testing.T) {
	cases := map[ListingStatus]bool{
		ListingStatusDraft:     true,
		ListingStatusPending:   true,
		ListingStatusPublished: false,
		ListingStatusHidden:    false,
	}
	for status, want := range cases {
		if got := status.Payable(); got != want {
			t.Fatalf("Payable(%s) = %v, want %v", status, got, want)
		}
	}
}
