package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"feedsync/internal/domain"
)

const (
	// SummaryThreshold is the largest batch that gets one notification per item.
	SummaryThreshold = 3
	maxBodyRunes     = 200
)

type Notification struct {
	Title string
	Body  string
}

// Summary turns a batch of items into desktop-style notifications and
// writes them to the log.
type Summary struct {
	policy *bluemonday.Policy
	logger *slog.Logger
}

func NewSummary(logger *slog.Logger) *Summary {
	return &Summary{
		policy: bluemonday.StrictPolicy(),
		logger: logger.With("component", "notifier"),
	}
}

// Build returns one notification per item for small batches, and a single
// summary for anything larger than SummaryThreshold.
func (s *Summary) Build(items []domain.Item) []Notification {
	if len(items) == 0 {
		return nil
	}

	if len(items) > SummaryThreshold {
		return []Notification{{
			Title: "New items arrived",
			Body:  fmt.Sprintf("There are %d items to read", len(items)),
		}}
	}

	out := make([]Notification, 0, len(items))
	for _, item := range items {
		out = append(out, Notification{
			Title: item.Title,
			Body:  truncate(s.plainText(item.Description), maxBodyRunes),
		})
	}
	return out
}

func (s *Summary) Notify(ctx context.Context, items []domain.Item) error {
	for _, n := range s.Build(items) {
		s.logger.InfoContext(ctx, "notification", "title", n.Title, "body", n.Body)
	}
	return nil
}

func (s *Summary) plainText(description string) string {
	text := html.UnescapeString(s.policy.Sanitize(description))
	return strings.Join(strings.Fields(text), " ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
