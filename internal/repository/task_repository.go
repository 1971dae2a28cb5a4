package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"todo-api/internal/models"
)

type TaskRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db, now: time.Now}
}

// clock returns the current time in UTC at the millisecond precision the API exposes.
func (r *TaskRepository) clock() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

const taskColumns = `id, owner_id, title, description, completed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner, extra ...interface{}) (*models.Task, error) {
	var task models.Task
	dest := append([]interface{}{
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&task.Completed,
		&task.CreatedAt,
		&task.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) Create(ctx context.Context, ownerID int, title, description string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := r.clock()
	query := `
		INSERT INTO tasks (owner_id, title, description, completed, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
		RETURNING ` + taskColumns
	task, err := scanTask(r.db.QueryRowContext(ctx, query, ownerID, title, description, now))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID int) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	task, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// lockOwned locks the task row for the rest of tx and checks ownership.
func lockOwned(ctx context.Context, tx *sql.Tx, taskID, ownerID int) (time.Time, error) {
	var owner int
	var updatedAt time.Time
	err := tx.QueryRowContext(ctx, `SELECT owner_id, updated_at FROM tasks WHERE id = $1 FOR UPDATE`, taskID).
		Scan(&owner, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("lock task: %w", err)
	}
	if owner != ownerID {
		return time.Time{}, ErrForbidden
	}
	return updatedAt, nil
}

// Update applies the non-nil fields of upd. updated_at always moves forward,
// by at least one millisecond, on a successful update.
func (r *TaskRepository) Update(ctx context.Context, taskID, ownerID int, upd models.TaskUpdate) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update task: %w", err)
	}
	defer tx.Rollback()

	prevUpdatedAt, err := lockOwned(ctx, tx, taskID, ownerID)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		trimmed := strings.TrimSpace(*upd.Title)
		if trimmed == "" {
			return nil, ErrEmptyTitle
		}
		upd.Title = &trimmed
	}

	updatedAt := r.clock()
	if !updatedAt.After(prevUpdatedAt) {
		updatedAt = prevUpdatedAt.Add(time.Millisecond)
	}

	query := `
		UPDATE tasks
		SET title = COALESCE($1, title),
			description = COALESCE($2, description),
			completed = COALESCE($3, completed),
			updated_at = $4
		WHERE id = $5
		RETURNING ` + taskColumns
	task, err := scanTask(tx.QueryRowContext(ctx, query, upd.Title, upd.Description, upd.Completed, updatedAt, taskID))
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, taskID, ownerID int) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete task: %w", err)
	}
	defer tx.Rollback()

	if _, err := lockOwned(ctx, tx, taskID, ownerID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete task: %w", err)
	}
	return nil
}

var sortColumns = map[string]string{
	models.SortCreatedAt: "created_at",
	models.SortUpdatedAt: "updated_at",
	models.SortTitle:     `title COLLATE "C"`,
}

// escapeLike escapes LIKE metacharacters so search terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of the owner's tasks and the number of matching
// tasks before pagination.
func (r *TaskRepository) List(ctx context.Context, ownerID int, q models.ListQuery) ([]models.Task, int, error) {
	q = q.Normalize()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	conditions := []string{"owner_id = $1"}
	args := []interface{}{ownerID}
	if q.Completed != nil {
		args = append(args, *q.Completed)
		conditions = append(conditions, fmt.Sprintf("completed = $%d", len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%[1]d OR description ILIKE $%[1]d)", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	direction := "DESC"
	if q.Order == models.OrderAsc {
		direction = "ASC"
	}
	orderBy := fmt.Sprintf("%s %s, id %s", sortColumns[q.Sort], direction, direction)

	pageArgs := append(append([]interface{}{}, args...), q.Limit, q.Offset())
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total
		FROM tasks
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		taskColumns, where, orderBy, len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	total := 0
	for rows.Next() {
		task, err := scanTask(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	// the window function yields nothing for a page past the end
	if len(tasks) == 0 && q.Offset() > 0 {
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE `+where, args...).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("count tasks: %w", err)
		}
	}
	return tasks, total, nil
}
