package hostversion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"editormcp/internal/domain"
)

// Version is a parsed host version such as 2022.3.20f1.
type Version struct {
	Raw     string
	Core    string
	Channel string
	Build   int
}

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?([abfpc])?(\d+)?`)

// channelRank orders release channels: alpha < beta < china < final < patch.
var channelRank = map[string]int{"a": 0, "b": 1, "c": 2, "f": 3, "": 3, "p": 4}

// Parse reads a host version string.
func Parse(raw string) (Version, error) {
	trimmed := strings.TrimSpace(raw)
	match := versionPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return Version{}, fmt.Errorf("invalid host version %q", raw)
	}
	patch := match[3]
	if patch == "" {
		patch = "0"
	}
	core := fmt.Sprintf("v%s.%s.%s", match[1], match[2], patch)
	if !semver.IsValid(core) {
		return Version{}, fmt.Errorf("invalid host version %q", raw)
	}
	build := 0
	if match[5] != "" {
		build, _ = strconv.Atoi(match[5])
	}
	return Version{Raw: trimmed, Core: core, Channel: match[4], Build: build}, nil
}

// Compare orders two parsed versions.
func Compare(a, b Version) int {
	if c := semver.Compare(a.Core, b.Core); c != 0 {
		return c
	}
	if ra, rb := channelRank[a.Channel], channelRank[b.Channel]; ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch {
	case a.Build < b.Build:
		return -1
	case a.Build > b.Build:
		return 1
	default:
		return 0
	}
}

// CompareStrings parses and compares two raw versions.
func CompareStrings(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return Compare(va, vb), nil
}

// IsCompatible reports whether raw meets the minimum supported host version.
func IsCompatible(raw string) bool {
	c, err := CompareStrings(raw, domain.MinHostVersion)
	return err == nil && c >= 0
}

// Validate returns an error describing why raw is unsupported.
func Validate(raw string) error {
	c, err := CompareStrings(raw, domain.MinHostVersion)
	if err != nil {
		return domain.E(domain.CodeFailedPrecond, "hostversion.Validate", err.Error(), domain.ErrHostIncompatible)
	}
	if c < 0 {
		return domain.E(domain.CodeFailedPrecond, "hostversion.Validate",
			fmt.Sprintf("host %s is older than the minimum %s", raw, domain.MinHostVersion), domain.ErrHostIncompatible)
	}
	return nil
}
