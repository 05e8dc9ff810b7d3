package convert

import (
	"fmt"
	"strings"
)

// Classifier maps raw subprocess diagnostic text to user-facing failure
// categories. It is a best-effort ordered lookup, not a protocol: the first
// matching pattern wins and unmatched text falls through to a generic
// conversion failure.
type Classifier struct {
	maxDownloadMB  int
	maxDurationMin int
	rules          []classifyRule
}

type classifyRule struct {
	pattern  string
	category Category
	message  string
}

// NewClassifier builds the pattern table, interpolating the configured size
// and duration ceilings into the ceiling-related messages.
func NewClassifier(maxDownloadMB, maxDurationSeconds int) *Classifier {
	c := &Classifier{
		maxDownloadMB:  maxDownloadMB,
		maxDurationMin: maxDurationSeconds / 60,
	}
	c.rules = []classifyRule{
		// Bot checks before the generic sign-in pattern: both mention signing in.
		{"Sign in to confirm you’re not a bot", CategoryBotDetection,
			"The video service rejected this request as automated. Please try again later."},
		{"Sign in to confirm you're not a bot", CategoryBotDetection,
			"The video service rejected this request as automated. Please try again later."},
		{"confirm your age", CategoryAuthRequired, "Video requires sign-in to verify age"},
		{"Join this channel", CategoryAuthRequired, "Video is members-only"},
		{"members-only", CategoryAuthRequired, "Video is members-only"},
		{"Sign in to", CategoryAuthRequired, "Video requires sign-in to access"},
		{"Private video", CategoryUnavailable, "Video is unavailable or private"},
		{"Video unavailable", CategoryUnavailable, "Video is unavailable or private"},
		{"This video is not available", CategoryUnavailable, "Video is unavailable or private"},
		{"Requested format is not available", CategoryFormatUnavailable,
			"Requested audio format is not available for this video"},
		{"max-filesize", CategorySizeExceeded,
			fmt.Sprintf("Video file is too large (max %dMB)", maxDownloadMB)},
		{"File is larger than max-filesize", CategorySizeExceeded,
			fmt.Sprintf("Video file is too large (max %dMB)", maxDownloadMB)},
		{"does not pass filter (duration", CategoryDurationExceeded,
			fmt.Sprintf("Video is too long (max %d minutes)", maxDurationSeconds/60)},
		{"Unable to download webpage", CategoryNetwork,
			"Could not reach the video service. Please try again."},
		{"Temporary failure in name resolution", CategoryNetwork,
			"Could not reach the video service. Please try again."},
		{"Connection reset", CategoryNetwork,
			"Could not reach the video service. Please try again."},
		{"Connection refused", CategoryNetwork,
			"Could not reach the video service. Please try again."},
	}
	return c
}

// Classify maps diagnostic text to a classified error. Ambiguous text yields
// the generic conversion-failure message with CategoryUnknown.
func (c *Classifier) Classify(diagnostic string) *Error {
	for _, rule := range c.rules {
		if strings.Contains(diagnostic, rule.pattern) {
			return NewError(rule.category, rule.message)
		}
	}
	return NewError(CategoryUnknown, "Conversion failed. Please check the URL and try again.")
}
