package scoring

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tailorreach/internal/model"
)

// ErrUnparseable is returned when a response carries no number.
var ErrUnparseable = eris.New("scoring: unparseable response")

// Policy decides what happens to a response with no number in it.
type Policy string

const (
	// PolicyError fails the customer's result.
	PolicyError Policy = "error"
	// PolicyRandom substitutes a uniform random likelihood in [0, 100).
	PolicyRandom Policy = "random"
)

// ParsePolicy validates a configured policy name. Empty means PolicyError.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyError:
		return PolicyError, nil
	case PolicyRandom:
		return PolicyRandom, nil
	default:
		return "", eris.Errorf("scoring: unknown unparseable policy %q", s)
	}
}

var (
	numberRE = regexp.MustCompile(`\d+(\.\d+)?`)
	tokenRE  = regexp.MustCompile(`\d+(\.\d+)?%?`)
)

// Parse extracts the likelihood and reason from a raw completion. The
// first number in the text is the likelihood, clamped to [0, 100]. The
// reason is the text with that number (and a trailing %) removed.
func Parse(text string) (float64, string, error) {
	match := numberRE.FindString(text)
	if match == "" {
		return 0, "", eris.Wrapf(ErrUnparseable, "response %q", truncate(text, 80))
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, "", eris.Wrapf(ErrUnparseable, "number %q", match)
	}
	return clamp(v), reasonOf(text), nil
}

// ParseWithFallback is Parse with the random policy: a response without a
// number gets a random likelihood from rnd, which must return [0, 1).
func ParseWithFallback(text string, rnd func() float64) (float64, string) {
	v, reason, err := Parse(text)
	if err == nil {
		return v, reason
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	return clamp(rnd() * 100), reasonOf(text)
}

func reasonOf(text string) string {
	loc := tokenRE.FindStringIndex(text)
	if loc != nil {
		text = text[:loc[0]] + text[loc[1]:]
	}
	reason := strings.TrimSpace(text)
	reason = strings.TrimLeft(reason, "-–—:;,. \t\n")
	if reason == "" {
		return model.NoReasonGiven
	}
	return reason
}

func clamp(v float64) float64 {
	return min(max(v, 0), 100)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
