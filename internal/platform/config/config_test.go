package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "bv-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "bv-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "bv-dev" {
		t.Errorf("expected events project to default to firebase project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Listings.Currency != "eur" {
		t.Errorf("expected default currency eur, got %s", cfg.Listings.Currency)
	}
	if len(cfg.Listings.Products) != 3 {
		t.Errorf("expected default product mapping for three listing types, got %v", cfg.Listings.Products)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url %s, got %s", defaultOIDCJWKSURL, cfg.Security.OIDC.JWKSURL)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Security.Captoken.TTL != defaultCaptokenTTL {
		t.Errorf("unexpected default captoken ttl: %s", cfg.Security.Captoken.TTL)
	}
	if cfg.Session.SlotTTL != defaultSessionSlotTTL {
		t.Errorf("unexpected default session slot ttl: %s", cfg.Session.SlotTTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_READ_TIMEOUT":        "20s",
		"API_FIREBASE_PROJECT_ID":        "bv-prod",
		"API_FIRESTORE_PROJECT_ID":       "bv-fire",
		"API_STORAGE_ATTACHMENTS_BUCKET": "attachments-prod",
		"API_STRIPE_API_KEY":             "secret://stripe/api",
		"API_STRIPE_WEBHOOK_SECRET":      "secret://stripe/webhook",
		"API_STRIPE_SUCCESS_URL":         "https://example.com/thank-you",
		"API_STRIPE_CANCEL_URL":          "https://example.com/checkout",
		"API_LISTINGS_PRODUCTS":          "share_issue=prod_A,share_marketplace=prod_B,promissory_note=prod_C",
		"API_LISTINGS_CURRENCY":          "EUR",
		"API_SESSION_SLOT_TTL":           "1h",
		"API_EVENTS_TOPIC":               "listing-lifecycle",
		"API_SECURITY_ENVIRONMENT":       "prod",
		"API_SECURITY_OIDC_AUDIENCE":     "https://service.example.com",
		"API_SECURITY_OIDC_ISSUERS":      "https://accounts.google.com",
		"API_SECURITY_CAPTOKEN_SECRET":   "secret://captoken/key",
		"API_SECURITY_CAPTOKEN_TTL":      "12h",
	}

	secrets := map[string]string{
		"secret://stripe/api":     "stripe-key",
		"secret://stripe/webhook": "stripe-webhook",
		"secret://captoken/key":   "captoken-key",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "bv-fire" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Stripe.APIKey != "stripe-key" {
		t.Errorf("expected stripe api key to resolve, got %q", cfg.Stripe.APIKey)
	}
	if cfg.Stripe.WebhookSecret != "stripe-webhook" {
		t.Errorf("expected stripe webhook secret to resolve, got %q", cfg.Stripe.WebhookSecret)
	}
	if cfg.Security.Captoken.Secret != "captoken-key" {
		t.Errorf("expected captoken secret to resolve, got %q", cfg.Security.Captoken.Secret)
	}
	if cfg.Security.Captoken.TTL != 12*time.Hour {
		t.Errorf("unexpected captoken ttl: %s", cfg.Security.Captoken.TTL)
	}
	if cfg.Listings.Products["share_issue"] != "prod_A" {
		t.Errorf("unexpected product mapping: %v", cfg.Listings.Products)
	}
	if cfg.Listings.Currency != "eur" {
		t.Errorf("expected currency lowered to eur, got %s", cfg.Listings.Currency)
	}
	if cfg.Session.SlotTTL != time.Hour {
		t.Errorf("unexpected session slot ttl: %s", cfg.Session.SlotTTL)
	}
	if cfg.Events.Topic != "listing-lifecycle" {
		t.Errorf("unexpected events topic: %s", cfg.Events.Topic)
	}
}

func TestLoadFailsWhenSecretUnresolvable(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "bv-dev",
		"API_STRIPE_API_KEY":      "secret://stripe/api",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected error when secret resolver is not configured")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://stripe/api" {
		t.Errorf("unexpected secret ref: %s", secretErr.Ref)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error without a project id")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	if len(fields) == 0 {
		t.Fatal("expected missing fields to be reported")
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "API_FIREBASE_PROJECT_ID=bv-local\nexport API_SERVER_PORT=7070\n# comment\nAPI_LISTINGS_CURRENCY=\"usd\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "bv-local" {
		t.Errorf("unexpected firebase project: %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Listings.Currency != "usd" {
		t.Errorf("unexpected currency: %s", cfg.Listings.Currency)
	}
}
