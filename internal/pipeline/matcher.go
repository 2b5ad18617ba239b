package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Classifier is the external semantic oracle: free-form prompt in,
// free-form text out.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

const matchPromptTemplate = `A memo and an uploaded file name follow.

Memo: %q
File name: %q

Is this file the attachment the memo refers to? Answer with exactly one word: "yes" or "no".`

// Matcher decides whether a file belongs to a memo. A wrong link corrupts
// the ledger silently while a missed link only costs a duplicate row, so
// anything short of an unambiguous "yes" counts as a non-match. That
// includes an oracle failure.
type Matcher struct {
	classifier Classifier
	logger     *slog.Logger
}

func NewMatcher(classifier Classifier, logger *slog.Logger) (*Matcher, error) {
	if classifier == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{classifier: classifier, logger: logger}, nil
}

func (m *Matcher) IsMatch(ctx context.Context, noteText, fileLabel string) bool {
	noteText = strings.TrimSpace(noteText)
	fileLabel = strings.TrimSpace(fileLabel)
	if noteText == "" || fileLabel == "" {
		return false
	}
	prompt := fmt.Sprintf(matchPromptTemplate, noteText, fileLabel)
	reply, err := m.classifier.Classify(ctx, prompt)
	if err != nil {
		m.logger.Warn("classifier unavailable, treating as no match",
			slog.String("file", fileLabel),
			slog.String("error", err.Error()))
		return false
	}
	return isAffirmative(reply)
}

func isAffirmative(reply string) bool {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	normalized = strings.Trim(normalized, ".!,。！ \t\r\n\"'")
	switch normalized {
	case "yes", "是":
		return true
	}
	return false
}
