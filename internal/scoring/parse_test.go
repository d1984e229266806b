package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tailorreach/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		likelihood float64
		reason     string
	}{
		{"leading percentage", "72% — strong match because they love hiking.", 72, "strong match because they love hiking."},
		{"decimal", "Likelihood: 64.5% given their interests.", 64.5, "Likelihood:  given their interests."},
		{"no percent sign", "85 They enjoy coffee.", 85, "They enjoy coffee."},
		{"clamped high", "150% certain.", 100, "certain."},
		{"number only", "40%", 40, model.NoReasonGiven},
		{"first number wins", "30% now, 90% later.", 30, "now, 90% later."},
		{"period separator", "72%. They like it.", 72, "They like it."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, reason, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.likelihood, v)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestParse_NoNumber(t *testing.T) {
	_, _, err := Parse("I cannot determine this.")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnparseable))

	_, _, err = Parse("")
	assert.True(t, errors.Is(err, ErrUnparseable))
}

func TestParseWithFallback(t *testing.T) {
	v, reason := ParseWithFallback("No idea.", func() float64 { return 0.42 })
	assert.InDelta(t, 42, v, 0.0001)
	assert.Equal(t, "No idea.", reason)

	v, _ = ParseWithFallback("", nil)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 100.0)

	v, reason = ParseWithFallback("55% fits.", func() float64 { return 0.99 })
	assert.Equal(t, 55.0, v)
	assert.Equal(t, "fits.", reason)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyError, p)

	p, err = ParsePolicy("Random")
	require.NoError(t, err)
	assert.Equal(t, PolicyRandom, p)

	_, err = ParsePolicy("zero")
	assert.Error(t, err)
}
