package repository

import (
	"context"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"usercrud/internal/errors"
)

const tracerName = "usercrud/internal/repository"

const (
	opSave    = "saving"
	opUpdate  = "updating"
	opDelete  = "deleting"
	opFind    = "finding"
	opFindAll = "loading all"
)

// Repository defines transactional CRUD operations over entity T keyed by ID.
type Repository[T any, ID comparable] interface {
	// Save inserts entity and writes the generated identifier back into it.
	Save(ctx context.Context, entity *T) (*T, error)
	// Update overwrites the stored record. entity must carry the identifier
	// of a record that still exists.
	Update(ctx context.Context, entity *T) (*T, error)
	// Delete reports whether a record with id existed and was removed.
	Delete(ctx context.Context, id ID) (bool, error)
	// FindByID returns false when no record has id; a miss is not an error.
	FindByID(ctx context.Context, id ID) (*T, bool, error)
	// FindAll returns every record ordered by primary key.
	FindAll(ctx context.Context) ([]T, error)
}

type gormRepository[T any, ID comparable] struct {
	db     *gorm.DB
	entity string
	tracer trace.Tracer
}

// NewRepository builds a GORM-backed repository for model T.
func NewRepository[T any, ID comparable](db *gorm.DB) Repository[T, ID] {
	return &gormRepository[T, ID]{
		db:     db,
		entity: reflect.TypeOf((*T)(nil)).Elem().Name(),
		tracer: otel.Tracer(tracerName),
	}
}

func (r *gormRepository[T, ID]) Save(ctx context.Context, entity *T) (*T, error) {
	err := r.executeInTransaction(ctx, opSave, nil, func(tx *gorm.DB) error {
		return tx.Create(entity).Error
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *gormRepository[T, ID]) Update(ctx context.Context, entity *T) (*T, error) {
	ctx, span := r.startSpan(ctx, opUpdate)
	defer span.End()
	start := time.Now()

	id, err := r.primaryKey(ctx, entity)
	if err == nil {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return overwrite(tx, entity)
		})
	}
	if err := r.finish(span, opUpdate, start, err); err != nil {
		return nil, errors.NewStorageError(r.entity, opUpdate, id, err)
	}
	return entity, nil
}

// overwrite writes every column of entity to the row with the same primary
// key. A row that no longer exists is reported, never re-inserted.
func overwrite[T any](tx *gorm.DB, entity *T) error {
	res := tx.Model(entity).Select("*").Updates(entity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository[T, ID]) Delete(ctx context.Context, id ID) (bool, error) {
	var deleted bool
	err := r.executeInTransaction(ctx, opDelete, id, func(tx *gorm.DB) error {
		res := tx.Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).Delete(new(T))
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *gormRepository[T, ID]) FindByID(ctx context.Context, id ID) (*T, bool, error) {
	ctx, span := r.startSpan(ctx, opFind)
	defer span.End()
	start := time.Now()

	var entity T
	res := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).
		Limit(1).
		Find(&entity)

	if err := r.finish(span, opFind, start, res.Error); err != nil {
		return nil, false, errors.NewStorageError(r.entity, opFind, id, err)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return &entity, true, nil
}

func (r *gormRepository[T, ID]) FindAll(ctx context.Context) ([]T, error) {
	ctx, span := r.startSpan(ctx, opFindAll)
	defer span.End()
	start := time.Now()

	var entities []T
	err := r.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.PrimaryColumn}).
		Find(&entities).Error

	if err := r.finish(span, opFindAll, start, err); err != nil {
		return nil, errors.NewStorageError(r.entity, opFindAll, nil, err)
	}
	return entities, nil
}

// executeInTransaction runs fn in its own transaction. GORM commits when fn
// returns nil and rolls back on error or panic.
func (r *gormRepository[T, ID]) executeInTransaction(ctx context.Context, op string, id any, fn func(tx *gorm.DB) error) error {
	ctx, span := r.startSpan(ctx, op)
	defer span.End()
	start := time.Now()

	err := r.db.WithContext(ctx).Transaction(fn)
	if err := r.finish(span, op, start, err); err != nil {
		return errors.NewStorageError(r.entity, op, id, err)
	}
	return nil
}

// primaryKey returns the primary key value of entity, or ErrMissingID when it
// is still zero.
func (r *gormRepository[T, ID]) primaryKey(ctx context.Context, entity *T) (any, error) {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(entity); err != nil {
		return nil, err
	}
	field := stmt.Schema.PrioritizedPrimaryField
	if field == nil {
		return nil, errors.ErrMissingID
	}
	value, zero := field.ValueOf(ctx, reflect.ValueOf(entity))
	if zero {
		return nil, errors.ErrMissingID
	}
	return value, nil
}

func (r *gormRepository[T, ID]) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, r.entity+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.entity", r.entity),
			attribute.String("db.operation", op),
		),
	)
}

// finish records metrics and span status for a completed operation and
// passes err through.
func (r *gormRepository[T, ID]) finish(span trace.Span, op string, start time.Time, err error) error {
	observe(r.entity, op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
