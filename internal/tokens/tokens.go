// Package tokens approximates token counts without a tokenizer. The
// estimate is deliberately biased upward so prompt budgets never overflow a
// model's context window.
package tokens

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// AvgCharsPerToken is the average number of characters per token.
	AvgCharsPerToken = 4
	// Tokens per whitespace-delimited word, in tenths.
	wordsToTokenTenths = 13

	// DefaultContextLimit applies to models missing from the limits table.
	DefaultContextLimit = 128000
	// DefaultReservedForCompletion is the completion headroom used when the
	// caller does not specify one.
	DefaultReservedForCompletion = 4096
	// DefaultBufferFraction is the safety margin taken off a model's limit.
	DefaultBufferFraction = 0.1
)

// WordsToTokenFactor is the words-to-tokens multiplier (1.3).
const WordsToTokenFactor = float64(wordsToTokenTenths) / 10

var modelContextLimits = map[string]int{
	"gpt-4o":        128000,
	"gpt-4o-mini":   128000,
	"gpt-4-turbo":   128000,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
}

// Estimate returns max(ceil(chars/4), ceil(words*1.3)) for text. Empty text
// costs zero.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	chars := utf8.RuneCountInString(text)
	words := len(strings.Fields(text))

	fromChars := (chars + AvgCharsPerToken - 1) / AvgCharsPerToken
	// Integer ceil of words*1.3; float multiplication would round 10*1.3 up to 14.
	fromWords := (words*wordsToTokenTenths + 9) / 10

	return max(fromChars, fromWords)
}

// ContextLimit returns the total context window of model.
func ContextLimit(model string) int {
	if limit, ok := modelContextLimits[model]; ok {
		return limit
	}
	return DefaultContextLimit
}

// ModelBudget returns the tokens available for the prompt once the
// completion reservation and the safety buffer are removed:
// limit - reserved - ceil(limit*bufferFraction).
func ModelBudget(model string, reservedForCompletion int, bufferFraction float64) int {
	limit := ContextLimit(model)
	if bufferFraction < 0 {
		bufferFraction = 0
	}
	// The epsilon keeps 128000*0.1 from ceiling to 12801 on float noise.
	buffer := int(math.Ceil(float64(limit)*bufferFraction - 1e-9))
	return limit - reservedForCompletion - buffer
}

// DefaultModelBudget is ModelBudget with the default buffer fraction.
func DefaultModelBudget(model string, reservedForCompletion int) int {
	return ModelBudget(model, reservedForCompletion, DefaultBufferFraction)
}
