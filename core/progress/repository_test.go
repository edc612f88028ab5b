package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
	"github.com/anasaran05/learnsync/storage/tabular/inmem"
)

const (
	storeID = "book"
	sheet   = "Sheet1"
)

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

func newRepository(t *testing.T) (*progress.Repository, *inmem.Store) {
	t.Helper()
	store := inmem.NewStore()
	return progress.NewRepository(store, storeID, sheet, progress.NewCache(time.Minute)), store
}

func record(owner, task string) progress.Record {
	return progress.Record{OwnerID: owner, CourseID: "c1", ChapterID: "ch1", TaskID: task}
}

// Scenario A
func TestRepository_Upsert_appendsNewKey(t *testing.T) {
	repo, store := newRepository(t)
	ctx := context.Background()

	rec := record("u1", "t1")
	rec.TaskCompleted = boolPtr(true)
	require.NoError(t, repo.Upsert(ctx, "u1", rec))

	rows := store.Rows(storeID, sheet)
	require.Len(t, rows, 2, "header and one row")
	assert.Equal(t, progress.Header, rows[0])
	assert.Equal(t, rec.Row(), rows[1])

	records, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, true, *records[0].TaskCompleted)
}

// P2: the second payload replaces the row, it is not merged into it.
func TestRepository_Upsert_replacesRow(t *testing.T) {
	repo, store := newRepository(t)
	ctx := context.Background()

	first := record("u1", "t1")
	first.TaskCompleted = boolPtr(true)
	require.NoError(t, repo.Upsert(ctx, "u1", first))

	second := record("u1", "t1")
	second.QuizScore = intPtr(85)
	require.NoError(t, repo.Upsert(ctx, "u1", second))

	rows := store.Rows(storeID, sheet)
	require.Len(t, rows, 2)

	records, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 85, *records[0].QuizScore)
	assert.Nil(t, records[0].TaskCompleted, "fields missing from the second payload are cleared")
}

func TestRepository_Upsert_keepsOtherRows(t *testing.T) {
	repo, store := newRepository(t)
	ctx := context.Background()

	for _, rec := range []progress.Record{record("u1", "t1"), record("u2", "t1"), record("u1", "t2")} {
		require.NoError(t, repo.Upsert(ctx, rec.OwnerID, rec))
	}
	updated := record("u2", "t1")
	updated.LessonCompleted = boolPtr(true)
	require.NoError(t, repo.Upsert(ctx, "u2", updated))

	rows := store.Rows(storeID, sheet)
	require.Len(t, rows, 4)
	assert.Equal(t, updated.Row(), rows[2])

	h, err := repo.Locate(ctx, progress.Key{OwnerID: "u2", TaskID: "t1"})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 3, h.Row)

	h, err = repo.Locate(ctx, progress.Key{OwnerID: "u3", TaskID: "t1"})
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestRepository_Upsert_validatesBeforeIO(t *testing.T) {
	repo, store := newRepository(t)

	err := repo.Upsert(context.Background(), "u1", progress.Record{CourseID: "c1"})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	reads, writes, appends := store.Calls()
	assert.Zero(t, reads+writes+appends)
}

// P3
func TestRepository_List_reflectsWrites(t *testing.T) {
	repo, store := newRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "u1", record("u1", "t1")))
	records, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	// served from the cache
	readsBefore, _, _ := store.Calls()
	_, err = repo.List(ctx, "u1")
	require.NoError(t, err)
	readsAfter, _, _ := store.Calls()
	assert.Equal(t, readsBefore, readsAfter)

	require.NoError(t, repo.Upsert(ctx, "u1", record("u1", "t2")))
	records, err = repo.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, records, 2, "the cache does not serve pre-write rows")
}

func TestRepository_List_filtersOwner(t *testing.T) {
	repo, _ := newRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "u1", record("u1", "t1")))
	require.NoError(t, repo.Upsert(ctx, "u2", record("u2", "t1")))

	records, err := repo.List(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "u2", records[0].OwnerID)

	records, err = repo.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
}

func TestRepository_List_headerDrivenColumns(t *testing.T) {
	repo, store := newRepository(t)
	ctx := context.Background()

	require.NoError(t, store.WriteRange(ctx, storeID, "Sheet1!A1:E2", [][]string{
		{progress.ColTask, progress.ColOwner, progress.ColCourse, progress.ColChapter, progress.ColQuizScore},
		{"t9", "u1", "c1", "ch1", "42"},
	}))

	records, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t9", records[0].TaskID)
	assert.Equal(t, 42, *records[0].QuizScore)
}

func TestRepository_Upsert_reorderedHeader(t *testing.T) {
	repo, store := newRepository(t)
	ctx := context.Background()

	require.NoError(t, store.WriteRange(ctx, storeID, "Sheet1!A1:D1", [][]string{
		{progress.ColTask, progress.ColOwner, progress.ColCourse, progress.ColChapter},
	}))

	first := record("u1", "t1")
	first.QuizScore = intPtr(85)
	require.NoError(t, repo.Upsert(ctx, "u1", first))

	rows := store.Rows(storeID, sheet)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		progress.ColTask, progress.ColOwner, progress.ColCourse, progress.ColChapter,
		progress.ColLesson, progress.ColQuizScore, progress.ColSimulationUnlocked,
		progress.ColTaskCompleted, progress.ColLessonCompleted,
	}, rows[0], "missing columns are added after the existing ones")
	assert.Equal(t, []string{"t1", "u1", "c1", "ch1"}, rows[1][:4])

	records, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 85, *records[0].QuizScore)
	assert.Empty(t, records[0].LessonID)

	second := record("u1", "t1")
	second.TaskCompleted = boolPtr(true)
	require.NoError(t, repo.Upsert(ctx, "u1", second))

	assert.Len(t, store.Rows(storeID, sheet), 2, "the second upsert replaces the row")
	records, err = repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, *records[0].TaskCompleted)
	assert.Nil(t, records[0].QuizScore)
}

func TestRepository_Upsert_headerWithoutRoom(t *testing.T) {
	repo, store := newRepository(t)
	ctx := context.Background()

	require.NoError(t, store.WriteRange(ctx, storeID, "Sheet1!A1:I1", [][]string{
		{progress.ColOwner, progress.ColTask, progress.ColCourse, progress.ColChapter, "notes", "a", "b", "c", "d"},
	}))

	err := repo.Upsert(ctx, "u1", record("u1", "t1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no room for columns")

	_, _, appends := store.Calls()
	assert.Zero(t, appends)
}

// Scenario C: concurrent upserts of the same new key produce one row.
func TestRepository_Upsert_concurrentSameKey(t *testing.T) {
	repo, store := newRepository(t)
	store.SetReadDelay(10 * time.Millisecond) // every upsert reads before it writes
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := record("u1", "t1")
			rec.QuizScore = intPtr(i)
			errs <- repo.Upsert(ctx, "u1", rec)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows := store.Rows(storeID, sheet)
	assert.Len(t, rows, 2, "one header and exactly one row for the key")
}

func TestRepository_Upsert_concurrentDistinctKeysOnEmptyTable(t *testing.T) {
	repo, store := newRepository(t)
	store.SetReadDelay(5 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, task := range []string{"t1", "t2", "t3", "t4"} {
		wg.Add(1)
		go func(task string) {
			defer wg.Done()
			assert.NoError(t, repo.Upsert(ctx, "u1", record("u1", task)))
		}(task)
	}
	wg.Wait()

	rows := store.Rows(storeID, sheet)
	require.Len(t, rows, 5)
	assert.Equal(t, progress.Header, rows[0], "the header is written once")
	for _, row := range rows[1:] {
		assert.NotEqual(t, progress.Header, row)
	}
}
