package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}
	return path
}

func TestValidatePolicy_Valid(t *testing.T) {
	path := writePolicy(t, t.TempDir(), "policy.json", `{
		"max_users": 16,
		"password": "hunter2",
		"required_keys": ["username"],
		"banned_users": ["mallory"],
		"banned_addresses": ["10.0.0.66"]
	}`)

	result := validatePolicy(path)
	if !result.Valid {
		t.Fatalf("Expected valid policy, but got errors: %v", result.Errors)
	}
	if result.File != "policy.json" {
		t.Errorf("Expected file name policy.json, got %s", result.File)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}

	info := strings.Join(result.Info, "\n")
	for _, want := range []string{"Max users: 16", "Password required: true", "Required keys: 1", "Bans: 1 users, 1 addresses"} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected info to contain %q, got:\n%s", want, info)
		}
	}
}

func TestValidatePolicy_Empty(t *testing.T) {
	path := writePolicy(t, t.TempDir(), "open.json", `{}`)

	result := validatePolicy(path)
	if !result.Valid {
		t.Fatalf("Expected an empty policy to be valid, got %v", result.Errors)
	}
	if !strings.Contains(strings.Join(result.Info, "\n"), "Max users: unlimited") {
		t.Errorf("Expected unlimited users, got %v", result.Info)
	}
}

func TestValidatePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"malformed", `{"max_users": `, "invalid policy"},
		{"unknown field", `{"max_user": 3}`, "unknown field"},
		{"negative capacity", `{"max_users": -1}`, "max_users must not be negative"},
		{"empty required key", `{"required_keys": [" "]}`, "required_keys[0] is empty"},
		{"duplicate required key", `{"required_keys": ["a", "a"]}`, "listed twice"},
		{"empty banned user", `{"banned_users": [""]}`, "banned_users[0] is empty"},
		{"bad address", `{"banned_addresses": ["nope"]}`, "is not an IP address"},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePolicy(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".json", tt.content)

			result := validatePolicy(path)
			if result.Valid {
				t.Fatal("Expected invalid policy")
			}
			if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, result.Errors)
			}
		})
	}
}

func TestValidatePolicy_Missing(t *testing.T) {
	result := validatePolicy(filepath.Join(t.TempDir(), "missing.json"))
	if result.Valid {
		t.Fatal("Expected missing file to be invalid")
	}
	if !strings.Contains(result.Errors[0], "not found") {
		t.Errorf("Expected not found error, got %v", result.Errors)
	}
}

func TestValidatePolicy_DuplicateBans(t *testing.T) {
	path := writePolicy(t, t.TempDir(), "dupes.json", `{
		"banned_users": ["Mallory", "mallory", "eve"],
		"banned_addresses": ["10.0.0.1", " 10.0.0.1", "10.0.0.2"]
	}`)

	result := validatePolicy(path)
	if !result.Valid {
		t.Fatalf("Duplicates must not invalidate the policy: %v", result.Errors)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], `banned user "mallory"`) {
		t.Errorf("Unexpected warning: %s", result.Warnings[0])
	}
	if !strings.Contains(result.Warnings[1], "banned address") {
		t.Errorf("Unexpected warning: %s", result.Warnings[1])
	}
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	a := writePolicy(t, dir, "a.json", `{}`)
	b := writePolicy(t, dir, "b.json", `{}`)
	writePolicy(t, dir, "notes.txt", "ignored")

	files, err := expand([]string{dir})
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(files) != 2 || files[0] != a || files[1] != b {
		t.Errorf("Expected [%s %s], got %v", a, b, files)
	}

	files, err = expand([]string{a})
	if err != nil || len(files) != 1 || files[0] != a {
		t.Errorf("Expected [%s], got %v (%v)", a, files, err)
	}

	if _, err := expand([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for missing path")
	}
}
