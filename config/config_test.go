package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testAdmin = "0x00000000000000000000000000000000000000ad"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `AdminAddress = "`+testAdmin+`"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":8645" {
		t.Fatalf("expected default listen address, got %q", cfg.ListenAddress)
	}
	if cfg.DataDir != "./escrowdata" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.NetworkName != "aeris-local" {
		t.Fatalf("expected default network name, got %q", cfg.NetworkName)
	}
	if cfg.AuthTokenEnv != "AERIS_RPC_TOKEN" {
		t.Fatalf("expected default auth token env, got %q", cfg.AuthTokenEnv)
	}
	if cfg.OrderTimeout != 24*60*60 {
		t.Fatalf("expected default timeout, got %d", cfg.OrderTimeout)
	}
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9999"
DataDir = "/var/lib/escrow"
NetworkName = "aeris-test"
Environment = "staging"
AdminAddress = "`+testAdmin+`"
OrderTimeoutSeconds = 600
AuthTokenEnv = "CUSTOM_TOKEN"
LogFile = "/var/log/escrowd.log"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":9999" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.OrderTimeout != 600 {
		t.Fatalf("unexpected timeout %d", cfg.OrderTimeout)
	}
	if cfg.AuthTokenEnv != "CUSTOM_TOKEN" {
		t.Fatalf("unexpected auth token env %q", cfg.AuthTokenEnv)
	}

	admin, err := cfg.Admin()
	if err != nil {
		t.Fatalf("Admin: %v", err)
	}
	if admin[19] != 0xAD {
		t.Fatalf("unexpected admin decoding: %x", admin)
	}
}

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected first run to error after writing the default file")
	}
	if !strings.Contains(err.Error(), "AdminAddress") {
		t.Fatalf("expected error to direct the operator to AdminAddress, got %v", err)
	}
	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("expected default config written: %v", readErr)
	}
	if !strings.Contains(string(raw), "ListenAddress") {
		t.Fatalf("default config missing expected keys:\n%s", raw)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"missing admin", `ListenAddress = ":8645"`},
		{"malformed admin", `AdminAddress = "not-an-address"`},
		{"short admin", `AdminAddress = "0x1234"`},
		{"negative timeout", `AdminAddress = "` + testAdmin + `"` + "\nOrderTimeoutSeconds = -5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.contents)
			if _, err := Load(path); err == nil {
				t.Fatal("expected load to fail")
			}
		})
	}
}

func TestAdminDecoding(t *testing.T) {
	// Prefixed and bare hex both decode to the same identity.
	for _, value := range []string{testAdmin, strings.TrimPrefix(testAdmin, "0x")} {
		cfg := &Config{AdminAddress: value}
		admin, err := cfg.Admin()
		if err != nil {
			t.Fatalf("Admin(%q): %v", value, err)
		}
		if admin[19] != 0xAD {
			t.Fatalf("unexpected decoding of %q: %x", value, admin)
		}
	}
	for _, value := range []string{"", "0x1234", "not-an-address", testAdmin + "00"} {
		cfg := &Config{AdminAddress: value}
		if _, err := cfg.Admin(); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestAuthTokenFromEnvironment(t *testing.T) {
	cfg := &Config{AuthTokenEnv: "ESCROW_TEST_TOKEN"}
	t.Setenv("ESCROW_TEST_TOKEN", "  secret  ")
	if got := cfg.AuthToken(); got != "secret" {
		t.Fatalf("expected trimmed token, got %q", got)
	}
	t.Setenv("ESCROW_TEST_TOKEN", "")
	if got := cfg.AuthToken(); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
