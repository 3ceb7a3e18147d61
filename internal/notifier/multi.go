package notifier

import (
	"context"
	"errors"

	"feedsync/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, items []domain.Item) error
}

// Multi forwards items to every notifier and joins their errors.
type Multi []Notifier

func NewMulti(notifiers ...Notifier) Multi {
	return Multi(notifiers)
}

func (m Multi) Notify(ctx context.Context, items []domain.Item) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, items); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
