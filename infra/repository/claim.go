package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/settlement/pkg/repository"
	"gorm.io/gorm"
)

type claimer struct {
	db  *gorm.DB
	now func() time.Time
}

func (c *claimer) CompareAndSwapStatus(
	ctx context.Context,
	target repository.ClaimTarget,
	id string,
	from []string,
	to string,
	set map[string]any,
) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("claim %s %s: no source status", target, id)
	}
	q := c.db.WithContext(ctx).Table(target.Table()).
		Where("id = ? AND "+target.Column()+" IN ?", id, from)
	return c.update(q, target, id, to, set)
}

func (c *claimer) CompareAndSwapStale(
	ctx context.Context,
	target repository.ClaimTarget,
	id string,
	from string,
	before time.Time,
	to string,
	set map[string]any,
) (bool, error) {
	q := c.db.WithContext(ctx).Table(target.Table()).
		Where("id = ? AND "+target.Column()+" = ? AND updated_at < ?", id, from, before)
	return c.update(q, target, id, to, set)
}

func (c *claimer) update(q *gorm.DB, target repository.ClaimTarget, id, to string, set map[string]any) (bool, error) {
	values := make(map[string]any, len(set)+2)
	for k, v := range set {
		if at, ok := v.(time.Time); ok {
			v = at.UTC()
		}
		values[k] = v
	}
	values[target.Column()] = to
	values["updated_at"] = c.now().UTC()

	res := q.Updates(values)
	if res.Error != nil {
		return false, fmt.Errorf("claim %s %s -> %s: %w", target, id, to, MapGormErrorToDomain(res.Error))
	}
	return res.RowsAffected == 1, nil
}
