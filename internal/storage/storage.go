package storage

import (
	"context"
	"errors"

	"cpamm/internal/model"
)

// EventSink receives committed pool events.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.PoolEvent) error
}

// Multi fans events out to every sink and joins their errors.
type Multi []EventSink

func (m Multi) PutEvents(ctx context.Context, events []model.PoolEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
