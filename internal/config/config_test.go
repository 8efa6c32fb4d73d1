package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.config"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GMSAOU != DefaultGMSAOU {
		t.Errorf("GMSAOU = %q, want default %q", cfg.GMSAOU, DefaultGMSAOU)
	}
	if cfg.MaxConcurrentRenewals != 4 {
		t.Errorf("MaxConcurrentRenewals = %d, want 4", cfg.MaxConcurrentRenewals)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecs.config")
	body := "# comment\nCF_DOMAIN_CONTROLLER=dc1.contoso.com\nCF_GMSA_SECRET_NAME=gmsa/webapp\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DomainControllerOverride != "dc1.contoso.com" {
		t.Errorf("DomainControllerOverride = %q", cfg.DomainControllerOverride)
	}
	if cfg.GMSASecretName != "gmsa/webapp" {
		t.Errorf("GMSASecretName = %q", cfg.GMSASecretName)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecs.config")
	if err := os.WriteFile(path, []byte("CF_DOMAIN_CONTROLLER=dc1.contoso.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvDomainController, "dc2.contoso.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DomainControllerOverride != "dc2.contoso.com" {
		t.Errorf("DomainControllerOverride = %q, want env override", cfg.DomainControllerOverride)
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecs.config")
	if err := os.WriteFile(path, []byte("not a valid line\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error for malformed line, got nil")
	}
}
