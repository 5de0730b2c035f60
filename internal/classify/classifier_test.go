package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-sec/sentinel/internal/core"
)

func TestClassifyEmptyContent(t *testing.T) {
	c := New()
	res := c.Classify("   ")

	assert.Equal(t, core.SensitivityInternal, res.Level)
	assert.Equal(t, 0.5, res.Confidence)
	assert.Equal(t, 0.6, res.Probabilities["internal"])
	assert.Equal(t, 0.2, res.Probabilities["public"])
	assert.Equal(t, 0.2, res.Probabilities["confidential"])
}

func TestClassifyNoKeywordsDefaultsInternal(t *testing.T) {
	c := New()
	res := c.Classify("the quick brown fox jumps over a lazy dog")

	assert.Equal(t, core.SensitivityInternal, res.Level)
	assert.Equal(t, 0.5, res.Confidence)
	assert.Empty(t, res.KeywordsFound)
}

func TestClassifyConfidentialKeywords(t *testing.T) {
	c := New()
	res := c.Classify("This document covers salary bands and the pending merger. Strictly confidential.")

	assert.Equal(t, core.SensitivityConfidential, res.Level)
	assert.Greater(t, res.Confidence, 0.5)
	assert.Contains(t, res.KeywordsFound, "salary")
	assert.Contains(t, res.KeywordsFound, "merger")
	assert.Contains(t, res.KeywordsFound, "confidential")
}

func TestClassifyPublicKeywords(t *testing.T) {
	c := New()
	res := c.Classify("Press release: public announcement for everyone, company-wide newsletter.")

	assert.Equal(t, core.SensitivityPublic, res.Level)
}

func TestPatternBonusPushesConfidential(t *testing.T) {
	c := New()
	// No confidential keywords, but an SSN-like pattern.
	res := c.Classify("employee record 123-45-6789 filed under general staff notes")

	assert.Equal(t, core.SensitivityConfidential, res.Level)
	require.NotEmpty(t, res.RiskIndicators)
	assert.Contains(t, res.RiskIndicators[0], "ssn")
}

func TestPasswordFieldPattern(t *testing.T) {
	c := New()
	res := c.Classify("deploy notes\npassword = hunter2hunter2\n")
	assert.Contains(t, res.RiskIndicators, "Detected password_field pattern")
}

func TestConfidentialConfidenceBoost(t *testing.T) {
	c := New()
	// One confidential and one internal hit: confidential wins the tie
	// with probability 0.5, then gets boosted to 0.75.
	res := c.Classify("internal note about the acquisition")

	require.Equal(t, core.SensitivityConfidential, res.Level)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
	assert.LessOrEqual(t, res.Confidence, 0.95)
}

func TestRiskScoreWeights(t *testing.T) {
	cases := []struct {
		level core.SensitivityLevel
		conf  float64
		want  float64
	}{
		{core.SensitivityPublic, 0.5, 0.05},
		{core.SensitivityInternal, 0.5, 0.25},
		{core.SensitivityConfidential, 0.9, 0.81},
	}
	for _, tc := range cases {
		r := Result{Level: tc.level, Confidence: tc.conf}
		assert.InDelta(t, tc.want, r.RiskScore(), 1e-9)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := New()
	text := "confidential merger terms, salary data, password: s3cret"
	a := c.Classify(text)
	b := c.Classify(text)
	assert.Equal(t, a, b)
}

func TestCompareDeclared(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		m := CompareDeclared(core.SensitivityInternal, Result{Level: core.SensitivityInternal, Confidence: 0.8})
		assert.False(t, m.Flagged)
		assert.Zero(t, m.RiskModifier)
	})

	t.Run("under-declared two levels", func(t *testing.T) {
		m := CompareDeclared(core.SensitivityPublic, Result{Level: core.SensitivityConfidential, Confidence: 0.9})
		assert.True(t, m.Flagged)
		assert.InDelta(t, 0.54, m.RiskModifier, 1e-9)
	})

	t.Run("under-declared one level", func(t *testing.T) {
		m := CompareDeclared(core.SensitivityInternal, Result{Level: core.SensitivityConfidential, Confidence: 0.8})
		assert.True(t, m.Flagged)
		assert.InDelta(t, 0.24, m.RiskModifier, 1e-9)
	})

	t.Run("over-declared is not flagged", func(t *testing.T) {
		m := CompareDeclared(core.SensitivityConfidential, Result{Level: core.SensitivityPublic, Confidence: 0.8})
		assert.False(t, m.Flagged)
		assert.InDelta(t, 0.04, m.RiskModifier, 1e-9)
	})
}
