package app

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// DefaultPageSize is the number of tasks on one visible page.
const DefaultPageSize = 5

// PriorityAll disables the priority filter.
const PriorityAll = "all"

// TaskFilter holds normalized filter criteria. Zero values mean "no filter".
type TaskFilter struct {
	Search   string
	Priority string
	From     time.Time
	To       time.Time
}

// TaskQuery combines filter criteria with the page to show.
type TaskQuery struct {
	Filter    TaskFilter
	Page      int
	PageSize  int
	BoardSort bool
}

// TaskPage is one visible slice of a filtered task collection plus pagination metadata.
type TaskPage struct {
	Tasks      []domain.Task
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// BoardColumn groups the tasks of one workflow state.
type BoardColumn struct {
	Status domain.Status
	Title  string
	Tasks  []domain.Task
}

// NormalizeTaskQuery maps absent or invalid criteria to "no filter" before the engine runs.
func NormalizeTaskQuery(q TaskQuery) TaskQuery {
	q.Filter.Search = strings.TrimSpace(q.Filter.Search)
	priority := strings.ToLower(strings.TrimSpace(q.Filter.Priority))
	if _, err := domain.ParsePriority(priority); err != nil {
		priority = PriorityAll
	}
	q.Filter.Priority = priority
	if q.Filter.From.IsZero() || q.Filter.To.IsZero() {
		q.Filter.From = time.Time{}
		q.Filter.To = time.Time{}
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// QueryTasks filters, optionally board-sorts, and paginates one task collection.
func QueryTasks(tasks []domain.Task, q TaskQuery) TaskPage {
	filtered := FilterTasks(tasks, q.Filter)
	if q.BoardSort {
		filtered = SortBoard(filtered)
	}
	return PaginateTasks(filtered, q.Page, q.PageSize)
}

// FilterTasks returns tasks matching every active criterion, preserving input order.
func FilterTasks(tasks []domain.Task, f TaskFilter) []domain.Task {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	priority := strings.ToLower(strings.TrimSpace(f.Priority))
	dateRange := !f.From.IsZero() && !f.To.IsZero()
	from := domain.CalendarDate(f.From)
	to := domain.CalendarDate(f.To)

	out := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if search != "" &&
			!strings.Contains(strings.ToLower(task.Title), search) &&
			!strings.Contains(strings.ToLower(task.Description), search) {
			continue
		}
		if priority != "" && priority != PriorityAll && string(task.Priority) != priority {
			continue
		}
		if dateRange {
			due := domain.CalendarDate(task.DueDate)
			// Both bounds are exclusive.
			if !due.After(from) || !due.Before(to) {
				continue
			}
		}
		out = append(out, task)
	}
	return out
}

// PaginateTasks returns items [(page-1)*size, page*size). Out-of-range pages are empty.
func PaginateTasks(tasks []domain.Task, page, size int) TaskPage {
	if size < 1 {
		size = DefaultPageSize
	}
	total := len(tasks)
	pages := total / size
	if total%size != 0 {
		pages++
	}
	result := TaskPage{
		Tasks:      []domain.Task{},
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: pages,
	}
	if page < 1 || page > result.TotalPages {
		return result
	}
	start := (page - 1) * size
	end := min(start+size, total)
	result.Tasks = slices.Clone(tasks[start:end])
	return result
}

// SortBoard orders by priority rank then due date, stably, without mutating the input.
func SortBoard(tasks []domain.Task) []domain.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b domain.Task) int {
		if c := cmp.Compare(a.Priority.Rank(), b.Priority.Rank()); c != 0 {
			return c
		}
		return a.DueDate.Compare(b.DueDate)
	})
	return out
}

// GroupByStatus splits tasks into board columns, each board-sorted.
func GroupByStatus(tasks []domain.Task) []BoardColumn {
	titles := map[domain.Status]string{
		domain.StatusTodo:       "Todo",
		domain.StatusInProgress: "In Progress",
		domain.StatusCompleted:  "Completed",
	}
	sorted := SortBoard(tasks)
	columns := make([]BoardColumn, 0, len(titles))
	for _, status := range domain.Statuses() {
		column := BoardColumn{Status: status, Title: titles[status], Tasks: []domain.Task{}}
		for _, task := range sorted {
			if task.Status == status {
				column.Tasks = append(column.Tasks, task)
			}
		}
		columns = append(columns, column)
	}
	return columns
}
