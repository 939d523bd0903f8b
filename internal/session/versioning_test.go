package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVersionPolicyEvaluate(t *testing.T) {
	p := DefaultVersionPolicy()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	base := strings.Repeat("a", 100)

	cases := []struct {
		name   string
		prev   string
		next   string
		since  time.Duration
		sig    Significance
		want   CaptureReason
		wantOK bool
	}{
		{"small recent edit", base, base + "b", time.Second, SignificanceNormal, "", false},
		{"exactly threshold", base, base + strings.Repeat("b", 50), time.Second, SignificanceNormal, "", false},
		{"over threshold", base, base + strings.Repeat("b", 51), time.Second, SignificanceNormal, ReasonLargeEdit, true},
		{"large deletion", base, "", time.Second, SignificanceNormal, ReasonLargeEdit, true},
		{"quiet interval elapsed", base, base + "b", 31 * time.Second, SignificanceNormal, ReasonInterval, true},
		{"unchanged after interval", base, base, time.Minute, SignificanceNormal, "", false},
		{"paste", base, base, time.Second, SignificancePaste, ReasonPaste, true},
		{"suggestion", base, base + "b", time.Second, SignificanceSuggestion, ReasonSuggestion, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := p.Evaluate(tc.prev, tc.next, t0, t0.Add(tc.since), tc.sig)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCharDeltaCountsRunes(t *testing.T) {
	assert.Equal(t, 3, charDelta("", "äöü"))
	assert.Equal(t, 2, charDelta("abcd", "ab"))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Large edit (+60 characters)", describe(ReasonLargeEdit, "", strings.Repeat("x", 60)))
	assert.Equal(t, "Large edit (-60 characters)", describe(ReasonLargeEdit, strings.Repeat("x", 60), ""))
	assert.Equal(t, "Periodic snapshot", describe(ReasonInterval, "a", "b"))
}
