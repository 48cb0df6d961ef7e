package teams

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	teamCodeRE = regexp.MustCompile(`^[A-Z0-9]{2,12}(-[A-Z0-9]{2,12}){1,3}$`)
	nonAlnumRE = regexp.MustCompile(`[^A-Za-z0-9\s]`)
)

const maxCodeParts = 4

// NormalizeTeamCode trims and uppercases a code typed by a user and checks its shape
func NormalizeTeamCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !teamCodeRE.MatchString(code) {
		return "", ErrInvalidTeamCode
	}
	return code, nil
}

// GenerateTeamCode derives a readable join code from a team name,
// e.g. "Dallas MLS 11B North" becomes "DALLAS-MLS-11B-NORTH".
func GenerateTeamCode(name string) string {
	words := strings.Fields(strings.ToUpper(nonAlnumRE.ReplaceAllString(name, "")))
	if len(words) > maxCodeParts {
		words = words[:maxCodeParts]
	}

	var parts []string
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		if len(w) > 6 {
			w = w[:4]
		}
		parts = append(parts, w)
	}
	for len(parts) < 2 {
		parts = append(parts, randomCodePart())
	}
	return strings.Join(parts, "-")
}

// withRandomSuffix keeps the readable prefix of code and appends a random part
func withRandomSuffix(code string) string {
	parts := strings.Split(code, "-")
	if len(parts) >= maxCodeParts {
		parts = parts[:maxCodeParts-1]
	}
	return strings.Join(append(parts, randomCodePart()), "-")
}

func randomCodePart() string {
	var b [2]byte
	// rand.Read never fails on supported platforms
	_, _ = rand.Read(b[:])
	return strings.ToUpper(hex.EncodeToString(b[:]))
}
