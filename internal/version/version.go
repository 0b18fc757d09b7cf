package version

import (
	"fmt"
	"os/exec"
	"strings"
)

// Set via -ldflags at release time.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// Resolve returns the version, with a git-derived suffix when run from a
// checkout whose HEAD is not a release tag.
func Resolve() string {
	return resolveVersion(Version, runGit)
}

// Describe renders the one-line banner printed by the version command.
func Describe(name string) string {
	return describe(name, Resolve(), Commit, Date)
}

func describe(name, version, commit, date string) string {
	line := fmt.Sprintf("%s v%s", name, version)
	if commit == "" || commit == "unknown" {
		return line
	}
	if date == "" || date == "unknown" {
		return fmt.Sprintf("%s (%s)", line, commit)
	}
	return fmt.Sprintf("%s (%s, %s)", line, commit, date)
}

func resolveVersion(base string, git func(...string) (string, error)) string {
	if base == "" {
		base = "0.0.0"
	}

	if suffix := gitSuffix(base, git); suffix != "" {
		return base + "-" + suffix
	}
	return base
}

func gitSuffix(base string, git func(...string) (string, error)) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}
	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(desc, "v"+base+"-")
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
