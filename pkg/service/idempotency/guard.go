// Package idempotency runs a logical operation at most once per key. The
// record, the operation's writes and the result snapshot commit together.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/idempotency"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/google/uuid"
)

// ErrOperationInProgress is returned when another caller holds the key and
// has not committed yet.
var ErrOperationInProgress = errors.New("operation with this idempotency key is in progress")

// errKeyTaken marks a lost insert race so it is not confused with an
// ErrAlreadyExists raised by the operation itself.
var errKeyTaken = errors.New("idempotency key taken")

// Guard owns the root unit of work operations are run in.
type Guard struct {
	uow repository.UnitOfWork
	now func() time.Time
}

// NewGuard creates a Guard. A nil clock uses the wall clock.
func NewGuard(uow repository.UnitOfWork, now func() time.Time) *Guard {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Guard{uow: uow, now: now}
}

// With returns a Guard bound to uow, so Run joins the transaction uow
// belongs to.
func (g *Guard) With(uow repository.UnitOfWork) *Guard {
	return &Guard{uow: uow, now: g.now}
}

// Run executes fn once for key. A completed key returns the stored snapshot
// with fresh=false without calling fn. When fn fails nothing is recorded
// and the key may be retried.
func Run[T any](
	ctx context.Context,
	g *Guard,
	key, scope, actor string,
	fn func(uow repository.UnitOfWork) (T, error),
) (result T, fresh bool, err error) {
	if key == "" {
		return result, false, fmt.Errorf("%w: idempotency key is required", domain.ErrValidation)
	}
	if rec, err := g.uow.Idempotency().FindByKey(ctx, key); err != nil {
		return result, false, fmt.Errorf("idempotency lookup %s: %w", key, err)
	} else if rec.Completed() {
		out, err := replay[T](rec)
		return out, false, err
	}

	err = g.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.Idempotency().Insert(ctx, &idempotency.Record{
			ID:        uuid.NewString(),
			Key:       key,
			Scope:     scope,
			Actor:     actor,
			Status:    idempotency.StatusInProgress,
			CreatedAt: g.now(),
		}); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return errKeyTaken
			}
			return err
		}
		out, err := fn(uow)
		if err != nil {
			return err
		}
		snapshot, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("snapshot result for %s: %w", key, err)
		}
		if err := uow.Idempotency().Complete(ctx, key, snapshot, g.now()); err != nil {
			return err
		}
		result = out
		return nil
	})
	if err == nil {
		return result, true, nil
	}
	if !errors.Is(err, errKeyTaken) {
		var zero T
		return zero, false, err
	}

	rec, ferr := g.uow.Idempotency().FindByKey(ctx, key)
	if ferr != nil {
		return result, false, fmt.Errorf("idempotency lookup %s: %w", key, ferr)
	}
	if !rec.Completed() {
		return result, false, ErrOperationInProgress
	}
	out, err := replay[T](rec)
	return out, false, err
}

func replay[T any](rec *idempotency.Record) (T, error) {
	var out T
	if len(rec.Result) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(rec.Result, &out); err != nil {
		return out, fmt.Errorf("decode snapshot for %s: %w", rec.Key, err)
	}
	return out, nil
}
