package session

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Significance tags an edit for the version capture policy.
type Significance string

const (
	SignificanceNormal     Significance = ""
	SignificancePaste      Significance = "paste"
	SignificanceSuggestion Significance = "suggestion"
)

// CaptureReason says why an edit became a version.
type CaptureReason string

const (
	ReasonLargeEdit  CaptureReason = "large-edit"
	ReasonInterval   CaptureReason = "interval"
	ReasonPaste      CaptureReason = "paste"
	ReasonSuggestion CaptureReason = "suggestion"
)

// VersionPolicy decides which content replacements are snapshotted and how
// many snapshots a document keeps.
type VersionPolicy struct {
	// MinDelta: a change in character count strictly greater than this is captured.
	MinDelta int
	// QuietInterval: an edit arriving more than this long after the last capture is captured.
	QuietInterval time.Duration
	// RetainCount is the number of newest versions pruning always keeps.
	RetainCount int
	// PruneProbability is the chance that a capture also triggers pruning.
	PruneProbability float64
}

func DefaultVersionPolicy() VersionPolicy {
	return VersionPolicy{
		MinDelta:         50,
		QuietInterval:    30 * time.Second,
		RetainCount:      50,
		PruneProbability: 0.1,
	}
}

// Evaluate returns the capture reason for replacing prev with next, or false
// when the edit is not worth a version. An unchanged text is never captured
// unless the edit is tagged.
func (p VersionPolicy) Evaluate(prev, next string, lastCapture, now time.Time, sig Significance) (CaptureReason, bool) {
	switch sig {
	case SignificancePaste:
		return ReasonPaste, true
	case SignificanceSuggestion:
		return ReasonSuggestion, true
	}
	if prev == next {
		return "", false
	}
	if delta := charDelta(prev, next); delta > p.MinDelta {
		return ReasonLargeEdit, true
	}
	if p.QuietInterval > 0 && now.Sub(lastCapture) > p.QuietInterval {
		return ReasonInterval, true
	}
	return "", false
}

func charDelta(prev, next string) int {
	d := utf8.RuneCountInString(next) - utf8.RuneCountInString(prev)
	if d < 0 {
		return -d
	}
	return d
}

func describe(reason CaptureReason, prev, next string) string {
	switch reason {
	case ReasonLargeEdit:
		d := utf8.RuneCountInString(next) - utf8.RuneCountInString(prev)
		return fmt.Sprintf("Large edit (%+d characters)", d)
	case ReasonPaste:
		return "Pasted content"
	case ReasonSuggestion:
		return "Applied suggestion"
	default:
		return "Periodic snapshot"
	}
}
