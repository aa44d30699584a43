// Command validate checks login policy files before they are deployed. Each
// argument is a policy file or a directory whose *.json files are checked;
// with no arguments the current directory is used. It checks:
//   - JSON structure, rejecting unknown fields
//   - max_users is not negative
//   - required keys are non-empty and unique
//   - banned users are non-empty and banned addresses are IP addresses
//
// Duplicate ban entries are reported as warnings. The exit status is non-zero
// if any file is invalid.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/scenehost/scene/config"
)

// ValidationResult captures the outcome of validating a single file.
// Errors make the file invalid; Warnings and Info never do.
type ValidationResult struct {
	File     string
	Valid    bool
	Errors   []string
	Warnings []string
	Info     []string
}

// validatePolicy loads and validates a single policy file
func validatePolicy(filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
	}

	policy, err := config.LoadPolicy(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	result.Warnings = append(result.Warnings, duplicates("banned user", policy.BannedUsers, strings.ToLower)...)
	result.Warnings = append(result.Warnings, duplicates("banned address", policy.BannedAddresses, strings.TrimSpace)...)

	if policy.MaxUsers > 0 {
		result.Info = append(result.Info, fmt.Sprintf("Max users: %d", policy.MaxUsers))
	} else {
		result.Info = append(result.Info, "Max users: unlimited")
	}
	result.Info = append(result.Info, fmt.Sprintf("Password required: %t", policy.Password != ""))
	result.Info = append(result.Info, fmt.Sprintf("Required keys: %d", len(policy.RequiredKeys)))
	result.Info = append(result.Info, fmt.Sprintf("Bans: %d users, %d addresses", len(policy.BannedUsers), len(policy.BannedAddresses)))

	return result
}

// duplicates reports entries that are equal after normalize
func duplicates(what string, entries []string, normalize func(string) string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		key := normalize(entry)
		if seen[key] {
			found = append(found, fmt.Sprintf("%s %q listed more than once", what, entry))
			continue
		}
		seen[key] = true
	}
	return found
}

// expand turns the arguments into the list of files to check
func expand(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}

	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.json"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

// main validates every file, printing a concise report and exiting with
// non-zero status if any are invalid.
func main() {
	files, err := expand(os.Args[1:])
	if err != nil {
		fmt.Printf("Error finding policy files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("No policy files found")
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validatePolicy(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Info {
				fmt.Println("  ✓ " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				fmt.Println("  ❌ " + err)
			}
		}
		for _, warning := range result.Warnings {
			fmt.Println("  ⚠ " + warning)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All policies are valid!")
	} else {
		fmt.Println("❌ Some policies have errors")
		os.Exit(1)
	}
}
