package types

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds a student display name, counted in runes after trimming
const MaxNameLength = 50

// MinOptions is the smallest number of non-empty options a poll may have
const MinOptions = 2

// NormalizeName trims a raw display name and checks its length bound.
// The returned name is NFC-normalized so visually identical names compare equal.
func NormalizeName(raw string) (string, error) {
	name := norm.NFC.String(strings.TrimSpace(raw))
	if name == "" {
		return "", NewError(KindValidation, "Name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", NewError(KindValidation, fmt.Sprintf("Name must be at most %d characters", MaxNameLength))
	}
	return name, nil
}

// NameKey is the case-folded form used for uniqueness checks,
// so "alice" and "ALICE" collide.
func NameKey(name string) string {
	// Casers are stateful; build one per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// NewPoll validates raw poll input and builds the immutable Poll value.
// Empty options are dropped together with their correctAnswers flag, so the
// flags stay aligned with the surviving options. A nil or empty correctAnswers
// means no option is flagged correct. maxTimeLimit <= 0 disables the upper bound.
func NewPoll(question string, options []string, correctAnswers []bool, timeLimitSeconds, maxTimeLimit int, createdAt time.Time) (*Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, NewError(KindValidation, "Question is required")
	}

	if len(correctAnswers) != 0 && len(correctAnswers) != len(options) {
		return nil, NewError(KindValidation, "correctAnswers must have one flag per option")
	}

	kept := make([]string, 0, len(options))
	flags := make([]bool, 0, len(options))
	for i, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		kept = append(kept, opt)
		flags = append(flags, len(correctAnswers) != 0 && correctAnswers[i])
	}
	if len(kept) < MinOptions {
		return nil, NewError(KindValidation, "Question and at least 2 options are required")
	}

	if timeLimitSeconds <= 0 {
		return nil, NewError(KindValidation, "Time limit must be a positive number of seconds")
	}
	if maxTimeLimit > 0 && timeLimitSeconds > maxTimeLimit {
		return nil, NewError(KindValidation, fmt.Sprintf("Time limit must be at most %d seconds", maxTimeLimit))
	}

	return &Poll{
		Question:         question,
		Options:          kept,
		CorrectAnswers:   flags,
		TimeLimitSeconds: timeLimitSeconds,
		CreatedAt:        createdAt,
	}, nil
}
