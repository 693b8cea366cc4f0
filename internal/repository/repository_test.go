package repository

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"

	"usercrud/internal/db"
	"usercrud/internal/errors"
	"usercrud/internal/model"
)

// tag has a natural string key and a unique column, to exercise the generic
// repository with another entity and to provoke constraint violations.
type tag struct {
	Code  string `gorm:"primaryKey;size:32"`
	Label string `gorm:"uniqueIndex;size:64"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.Open(db.DriverSQLite, "file::memory:", db.Options{})
	require.NoError(t, err)
	require.NoError(t, db.PrepareSchema(gormDB, db.SchemaUpdate, &model.User{}, &tag{}))
	t.Cleanup(func() { _ = db.Close(gormDB) })
	return gormDB
}

func TestUserRepository_SaveAndFindByID(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	saved, err := repo.Save(ctx, &model.User{Name: "Murad", Email: "murad@test.com", Age: 25})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	found, ok, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *saved, *found)
}

func TestUserRepository_FindByIDMissing(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	found, ok, err := repo.FindByID(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, found)
}

func TestUserRepository_FindAll(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	users, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	first, err := repo.Save(ctx, &model.User{Name: "Murad", Email: "murad@test.com", Age: 25})
	require.NoError(t, err)
	second, err := repo.Save(ctx, &model.User{Name: "A", Email: "a@test.com", Age: 20})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	users, err = repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.User{*first, *second}, users)
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	saved, err := repo.Save(ctx, &model.User{Name: "Murad", Email: "murad@test.com", Age: 25})
	require.NoError(t, err)
	id := saved.ID

	saved.Name, saved.Email, saved.Age = "New", "new@test.com", 35
	updated, err := repo.Update(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, id, updated.ID)

	found, ok, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.User{ID: id, Name: "New", Email: "new@test.com", Age: 35}, *found)
}

func TestUserRepository_UpdateWithoutID(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	_, err := repo.Update(ctx, &model.User{Name: "Ghost"})
	require.Error(t, err)

	var storageErr *errors.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "User", storageErr.Entity)
	assert.ErrorIs(t, err, errors.ErrMissingID)

	users, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUserRepository_UpdateWithoutIDIsObserved(t *testing.T) {
	recorder := installSpanRecorder(t)
	repo := NewUserRepository(newTestDB(t))
	failures := operationErrors.WithLabelValues("User", opUpdate)
	before := testutil.ToFloat64(failures)

	_, err := repo.Update(context.Background(), &model.User{Name: "Ghost"})
	require.ErrorIs(t, err, errors.ErrMissingID)

	assert.Equal(t, before+1, testutil.ToFloat64(failures))
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "User.updating", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestUserRepository_UpdateDeletedRowIsNotReinserted(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	saved, err := repo.Save(ctx, &model.User{Name: "Murad", Email: "murad@test.com", Age: 25})
	require.NoError(t, err)
	deleted, err := repo.Delete(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	saved.Name = "New"
	_, err = repo.Update(ctx, saved)

	var storageErr *errors.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, opUpdate, storageErr.Op)
	assert.Equal(t, saved.ID, storageErr.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	users, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUserRepository_UpdateWithUnchangedValues(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	saved, err := repo.Save(ctx, &model.User{Name: "Murad", Email: "murad@test.com", Age: 25})
	require.NoError(t, err)

	_, err = repo.Update(ctx, &model.User{ID: saved.ID, Name: "Murad", Email: "murad@test.com", Age: 25})
	require.NoError(t, err)
}

func TestUserRepository_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	saved, err := repo.Save(ctx, &model.User{Name: "A", Email: "a@test.com", Age: 20})
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, ok, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_StringKeyAndConstraintViolation(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[tag, string](newTestDB(t))

	_, err := repo.Save(ctx, &tag{Code: "go", Label: "Golang"})
	require.NoError(t, err)

	_, err = repo.Save(ctx, &tag{Code: "golang", Label: "Golang"})
	require.Error(t, err)

	var storageErr *errors.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "tag", storageErr.Entity)
	assert.Equal(t, opSave, storageErr.Op)
	assert.Contains(t, err.Error(), "error saving tag")

	tags, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []tag{{Code: "go", Label: "Golang"}}, tags)

	found, ok, err := repo.FindByID(ctx, "go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Golang", found.Label)

	deleted, err := repo.Delete(ctx, "go")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestExecuteInTransaction_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	repo := NewRepository[model.User, uint](gormDB).(*gormRepository[model.User, uint])

	boom := stderrors.New("boom")
	err := repo.executeInTransaction(ctx, opSave, nil, func(tx *gorm.DB) error {
		if err := tx.Create(&model.User{Name: "Half", Email: "half@test.com"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	users, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUserRepository_ClosedDatabase(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	repo := NewUserRepository(gormDB)
	require.NoError(t, db.Close(gormDB))

	var storageErr *errors.StorageError

	_, err := repo.FindAll(ctx)
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, opFindAll, storageErr.Op)

	_, _, err = repo.FindByID(ctx, 1)
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, uint(1), storageErr.ID)

	_, err = repo.Delete(ctx, 1)
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, opDelete, storageErr.Op)

	_, err = repo.Save(ctx, &model.User{Name: "A"})
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, opSave, storageErr.Op)
}

// installSpanRecorder routes spans from repositories created afterwards to an
// in-memory recorder.
func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestRepository_Spans(t *testing.T) {
	recorder := installSpanRecorder(t)
	ctx := context.Background()
	gormDB := newTestDB(t)
	repo := NewUserRepository(gormDB)

	saved, err := repo.Save(ctx, &model.User{Name: "A", Email: "a@test.com", Age: 20})
	require.NoError(t, err)
	_, err = repo.Delete(ctx, saved.ID)
	require.NoError(t, err)

	require.NoError(t, db.Close(gormDB))
	_, err = repo.Delete(ctx, saved.ID)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "User.saving", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, "User.deleting", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)

	failed := spans[2]
	assert.Equal(t, "User.deleting", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	require.NotEmpty(t, failed.Events())
	assert.Equal(t, "exception", failed.Events()[0].Name)
}
