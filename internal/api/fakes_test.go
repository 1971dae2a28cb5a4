package api

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"todo-api/internal/models"
	"todo-api/internal/repository"
)

type memoryUsers struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[string]*models.User{}}
}

func (m *memoryUsers) Create(_ context.Context, name, email, hash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := m.users[key]; ok {
		return nil, repository.ErrDuplicateEmail
	}
	m.nextID++
	u := &models.User{ID: m.nextID, Name: name, Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[key] = u
	return u, nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// memoryTasks mirrors the semantics of repository.TaskRepository in memory.
type memoryTasks struct {
	mu     sync.Mutex
	nextID int
	tasks  map[int]*models.Task
	now    func() time.Time
}

func newMemoryTasks() *memoryTasks {
	return &memoryTasks{tasks: map[int]*models.Task{}, now: time.Now}
}

func (m *memoryTasks) clock() time.Time {
	return m.now().UTC().Truncate(time.Millisecond)
}

func (m *memoryTasks) Create(_ context.Context, ownerID int, title, description string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, repository.ErrEmptyTitle
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := m.clock()
	t := &models.Task{
		ID:          m.nextID,
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.tasks[t.ID] = t
	copied := *t
	return &copied, nil
}

func (m *memoryTasks) GetByID(_ context.Context, taskID int) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *memoryTasks) owned(taskID, ownerID int) (*models.Task, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if t.OwnerID != ownerID {
		return nil, repository.ErrForbidden
	}
	return t, nil
}

func (m *memoryTasks) Update(_ context.Context, taskID, ownerID int, upd models.TaskUpdate) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.owned(taskID, ownerID)
	if err != nil {
		return nil, err
	}
	next := *t
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, repository.ErrEmptyTitle
		}
		next.Title = title
	}
	if upd.Description != nil {
		next.Description = *upd.Description
	}
	if upd.Completed != nil {
		next.Completed = *upd.Completed
	}
	next.UpdatedAt = m.clock()
	if !next.UpdatedAt.After(t.UpdatedAt) {
		next.UpdatedAt = t.UpdatedAt.Add(time.Millisecond)
	}
	*t = next
	return &next, nil
}

func (m *memoryTasks) Delete(_ context.Context, taskID, ownerID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.owned(taskID, ownerID); err != nil {
		return err
	}
	delete(m.tasks, taskID)
	return nil
}

func (m *memoryTasks) List(_ context.Context, ownerID int, q models.ListQuery) ([]models.Task, int, error) {
	q = q.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()

	search := strings.ToLower(q.Search)
	matched := []models.Task{}
	for _, t := range m.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		if q.Completed != nil && t.Completed != *q.Completed {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		matched = append(matched, *t)
	}

	less := func(a, b models.Task) bool {
		switch q.Sort {
		case models.SortTitle:
			if a.Title != b.Title {
				return a.Title < b.Title
			}
		case models.SortUpdatedAt:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.Slice(matched, func(i, j int) bool {
		if q.Order == models.OrderAsc {
			return less(matched[i], matched[j])
		}
		return less(matched[j], matched[i])
	})

	total := len(matched)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
