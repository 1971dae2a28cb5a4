package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"todo-api/internal/models"
	"todo-api/internal/testutil"
	"todo-api/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDB     *sql.DB
	skipReason string
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	cleanup, err := startPostgres()
	if err != nil {
		skipReason = err.Error()
		return m.Run()
	}
	defer cleanup()
	defer testDB.Close()

	if err := Migrate(ctx, testDB); err != nil {
		log.Fatalf("Failed to migrate test database: %v", err)
	}
	code := m.Run()
	if err := DropAllTables(ctx, testDB); err != nil {
		log.Printf("Failed to drop tables: %v", err)
	}
	return code
}

// startPostgres connects testDB to a disposable PostgreSQL server.
func startPostgres() (func(), error) {
	dsn, cleanup, err := testutil.Postgres()
	if err != nil {
		return nil, err
	}
	db, err := database.ConnectDB(context.Background(), dsn)
	if err != nil {
		cleanup()
		return nil, err
	}
	testDB = db
	return cleanup, nil
}

func requireDB(t *testing.T) {
	t.Helper()
	if skipReason != "" {
		t.Skipf("postgres unavailable: %s", skipReason)
	}
	_, err := testDB.Exec(`TRUNCATE tasks, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func createUser(t *testing.T, email string) *models.User {
	t.Helper()
	user, err := NewUserRepository(testDB).Create(context.Background(), "User "+email, email, "hash")
	require.NoError(t, err)
	return user
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newTaskRepo(clock func() time.Time) *TaskRepository {
	repo := NewTaskRepository(testDB)
	if clock != nil {
		repo.now = clock
	}
	return repo
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	users := NewUserRepository(testDB)

	first, err := users.Create(ctx, "Alice", "alice@example.com", "hash")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = users.Create(ctx, "Alice Again", "ALICE@Example.com", "hash2")
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	found, err := users.FindByEmail(ctx, "Alice@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "Alice", found.Name)
	assert.Equal(t, "hash", found.PasswordHash)
}

func TestUserFindByEmailNotFound(t *testing.T) {
	requireDB(t)
	_, err := NewUserRepository(testDB).FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskCreateAndGet(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	owner := createUser(t, "owner@example.com")
	repo := newTaskRepo(nil)

	task, err := repo.Create(ctx, owner.ID, "  Buy milk  ", "2 liters")
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, "2 liters", task.Description)
	assert.False(t, task.Completed)
	assert.Equal(t, owner.ID, task.OwnerID)
	assert.True(t, task.CreatedAt.Equal(task.UpdatedAt))

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.Create(ctx, owner.ID, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyTitle)

	_, err = repo.GetByID(ctx, task.ID+1000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskUpdatePartial(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	owner := createUser(t, "owner@example.com")

	frozen := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	repo := newTaskRepo(func() time.Time { return frozen })

	task, err := repo.Create(ctx, owner.ID, "Buy milk", "2 liters")
	require.NoError(t, err)

	done := true
	updated, err := repo.Update(ctx, task.ID, owner.ID, models.TaskUpdate{Completed: &done})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Buy milk", updated.Title)
	assert.Equal(t, "2 liters", updated.Description)
	assert.True(t, updated.CreatedAt.Equal(task.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt), "updated_at must advance even with a frozen clock")

	title := "Buy oat milk"
	empty := ""
	undone := false
	again, err := repo.Update(ctx, task.ID, owner.ID, models.TaskUpdate{Title: &title, Description: &empty, Completed: &undone})
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", again.Title)
	assert.Equal(t, "", again.Description)
	assert.False(t, again.Completed)
	assert.True(t, again.UpdatedAt.After(updated.UpdatedAt))

	blank := "  "
	_, err = repo.Update(ctx, task.ID, owner.ID, models.TaskUpdate{Title: &blank, Completed: &done})
	assert.ErrorIs(t, err, ErrEmptyTitle)

	unchanged, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", unchanged.Title)
	assert.False(t, unchanged.Completed, "a rejected update must not apply any field")
}

func TestTaskOwnership(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	alice := createUser(t, "alice@example.com")
	bob := createUser(t, "bob@example.com")
	repo := newTaskRepo(nil)

	task, err := repo.Create(ctx, alice.ID, "Alice's task", "")
	require.NoError(t, err)

	title := "hijacked"
	_, err = repo.Update(ctx, task.ID, bob.ID, models.TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	err = repo.Delete(ctx, task.ID, bob.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice's task", got.Title)
	assert.True(t, got.UpdatedAt.Equal(task.UpdatedAt))

	_, err = repo.Update(ctx, task.ID+1000, alice.ID, models.TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, task.ID+1000, alice.ID), ErrNotFound)
}

func TestTaskDelete(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	owner := createUser(t, "owner@example.com")
	repo := newTaskRepo(nil)

	task, err := repo.Create(ctx, owner.ID, "Temporary", "")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, task.ID, owner.ID))
	_, err = repo.GetByID(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, task.ID, owner.ID), ErrNotFound)

	items, total, err := repo.List(ctx, owner.ID, models.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestTaskListPagination(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	owner := createUser(t, "owner@example.com")
	other := createUser(t, "other@example.com")
	repo := newTaskRepo(steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	for i := 1; i <= 15; i++ {
		_, err := repo.Create(ctx, owner.ID, fmt.Sprintf("Task %02d", i), "")
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, other.ID, "Not mine", "")
	require.NoError(t, err)

	items, total, err := repo.List(ctx, owner.ID, models.ListQuery{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 15, total)
	require.Len(t, items, 5)
	// default order is created_at desc, so the second page holds the oldest five
	assert.Equal(t, "Task 05", items[0].Title)
	assert.Equal(t, "Task 01", items[4].Title)

	firstPage, _, err := repo.List(ctx, owner.ID, models.ListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, firstPage, 10)
	assert.Equal(t, "Task 15", firstPage[0].Title)

	beyond, total, err := repo.List(ctx, owner.ID, models.ListQuery{Page: 5, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
	assert.Equal(t, 15, total, "total is reported even past the last page")

	for _, task := range append(firstPage, items...) {
		assert.Equal(t, owner.ID, task.OwnerID)
	}
}

func TestTaskListSearch(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	owner := createUser(t, "owner@example.com")
	repo := newTaskRepo(nil)

	groceries, err := repo.Create(ctx, owner.ID, "Groceries", "milk")
	require.NoError(t, err)
	_, err = repo.Create(ctx, owner.ID, "Laundry", "whites")
	require.NoError(t, err)
	percent, err := repo.Create(ctx, owner.ID, "Save 10% more", "")
	require.NoError(t, err)

	for _, term := range []string{"grocer", "MILK"} {
		items, total, err := repo.List(ctx, owner.ID, models.ListQuery{Search: term})
		require.NoError(t, err, term)
		require.Len(t, items, 1, term)
		assert.Equal(t, groceries.ID, items[0].ID, term)
		assert.Equal(t, 1, total, term)
	}

	items, _, err := repo.List(ctx, owner.ID, models.ListQuery{Search: "%"})
	require.NoError(t, err)
	require.Len(t, items, 1, "percent sign matches literally")
	assert.Equal(t, percent.ID, items[0].ID)
}

func TestTaskListSortAndFilter(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	owner := createUser(t, "owner@example.com")
	repo := newTaskRepo(steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	titles := []string{"banana", "Apple", "cherry", "apple", "Banana"}
	for _, title := range titles {
		_, err := repo.Create(ctx, owner.ID, title, "")
		require.NoError(t, err)
	}

	items, _, err := repo.List(ctx, owner.ID, models.ListQuery{Sort: models.SortTitle, Order: models.OrderAsc})
	require.NoError(t, err)
	got := make([]string, len(items))
	for i, item := range items {
		got[i] = item.Title
	}
	assert.True(t, sort.StringsAreSorted(got), "titles not in lexicographic order: %v", got)

	first := items[0]
	done := true
	_, err = repo.Update(ctx, first.ID, owner.ID, models.TaskUpdate{Completed: &done})
	require.NoError(t, err)

	completed, total, err := repo.List(ctx, owner.ID, models.ListQuery{Completed: &done})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, completed[0].ID)

	notDone := false
	_, total, err = repo.List(ctx, owner.ID, models.ListQuery{Completed: &notDone})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	byUpdated, _, err := repo.List(ctx, owner.ID, models.ListQuery{Sort: models.SortUpdatedAt, Order: models.OrderDesc})
	require.NoError(t, err)
	assert.Equal(t, first.ID, byUpdated[0].ID, "most recently updated first")
}

func TestTaskListIsRepeatable(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	owner := createUser(t, "owner@example.com")
	// a frozen clock puts every task on the same created_at, leaving id as the tie-breaker
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newTaskRepo(func() time.Time { return frozen })

	for i := 0; i < 12; i++ {
		_, err := repo.Create(ctx, owner.ID, "same", "")
		require.NoError(t, err)
	}

	q := models.ListQuery{Page: 2, Limit: 5}
	first, total1, err := repo.List(ctx, owner.ID, q)
	require.NoError(t, err)
	second, total2, err := repo.List(ctx, owner.ID, q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, total1, total2)
}

func TestTaskConcurrentUpdates(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	owner := createUser(t, "owner@example.com")
	repo := newTaskRepo(nil)

	task, err := repo.Create(ctx, owner.ID, "contended", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			done := i%2 == 0
			_, err := repo.Update(ctx, task.ID, owner.ID, models.TaskUpdate{Completed: &done})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(task.UpdatedAt))
}
