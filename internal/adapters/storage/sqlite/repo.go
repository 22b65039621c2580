package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanschultz/taskdeck/internal/app"
	"github.com/evanschultz/taskdeck/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// dsnPragmas apply to every pooled connection.
const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Repository is the SQLite-backed entity store.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, "file:"+path+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database on a single connection.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		// Personal tasks carry a NULL project_id.
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			due_date TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'todo',
			assigned_by TEXT NOT NULL DEFAULT '',
			assigned_to TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'member',
			joined_at TEXT NOT NULL,
			UNIQUE(project_id, email),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			author_id TEXT NOT NULL DEFAULT '',
			author_name TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS join_requests (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			requester_id TEXT NOT NULL DEFAULT '',
			requester_name TEXT NOT NULL,
			requester_email TEXT NOT NULL,
			requester_avatar TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			request_date TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			reviewed_by TEXT NOT NULL DEFAULT '',
			reviewed_at TEXT,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			avatar TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_personal_owner ON tasks(created_by) WHERE project_id IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_members_email ON members(email);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_project_created_at ON comments(project_id, created_at ASC);`,
		`CREATE INDEX IF NOT EXISTS idx_join_requests_project ON join_requests(project_id, request_date ASC);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_project_created_at ON change_events(project_id, created_at DESC, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateProject creates project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects(id, name, description, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.CreatedBy, ts(p.CreatedAt), ts(p.UpdatedAt))
	return translateConstraint(err)
}

// UpdateProject updates state for the requested operation.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Description, ts(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetProject returns project.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM projects
		WHERE id = ?
	`, id)
	return scanProject(row)
}

// ListProjects lists projects.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM projects
		ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// taskColumns is the canonical select list for scanTask.
const taskColumns = `id, project_id, title, description, due_date, priority, status, assigned_by, assigned_to, created_by, created_at, updated_at`

// CreateTask creates task.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks(`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		nullableString(t.ProjectID),
		t.Title,
		t.Description,
		dateString(t.DueDate),
		string(t.Priority),
		string(t.Status),
		t.AssignedBy,
		t.AssignedTo,
		t.CreatedBy,
		ts(t.CreatedAt),
		ts(t.UpdatedAt),
	)
	return translateConstraint(err)
}

// UpdateTask writes the mutable task fields. The project reference is never rewritten.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, due_date = ?, priority = ?, status = ?, assigned_by = ?, assigned_to = ?, updated_at = ?
		WHERE id = ?
	`,
		t.Title,
		t.Description,
		dateString(t.DueDate),
		string(t.Priority),
		string(t.Status),
		t.AssignedBy,
		t.AssignedTo,
		ts(t.UpdatedAt),
		t.ID,
	)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetTask returns task.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTaskByID(ctx, r.db, id)
}

// DeleteTask deletes task.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListProjectTasks lists a project's tasks in insertion order.
func (r *Repository) ListProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = ?
		ORDER BY rowid ASC
	`, projectID)
}

// ListPersonalTasks lists tasks without a project owned by one user.
func (r *Repository) ListPersonalTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id IS NULL AND created_by = ?
		ORDER BY rowid ASC
	`, ownerID)
}

// ListAssignedTasks lists project tasks assigned to any member row carrying email.
func (r *Repository) ListAssignedTasks(ctx context.Context, email string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `
		SELECT t.id, t.project_id, t.title, t.description, t.due_date, t.priority, t.status, t.assigned_by, t.assigned_to, t.created_by, t.created_at, t.updated_at
		FROM tasks t
		JOIN members m ON m.id = t.assigned_to
		WHERE t.project_id IS NOT NULL AND m.email = ?
		ORDER BY t.rowid ASC
	`, email)
}

func (r *Repository) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// AddMember inserts a member. An email already on the project returns app.ErrDuplicate.
func (r *Repository) AddMember(ctx context.Context, m domain.Member) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM members WHERE project_id = ? AND email = ?`, m.ProjectID, m.Email).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		err = fmt.Errorf("member %s: %w", m.Email, app.ErrDuplicate)
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO members(id, project_id, name, email, avatar, role, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.Name, m.Email, m.Avatar, string(m.Role), ts(m.JoinedAt))
	if err != nil {
		err = translateConstraint(err)
		return err
	}

	err = tx.Commit()
	return err
}

// GetMember returns member.
func (r *Repository) GetMember(ctx context.Context, id string) (domain.Member, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, email, avatar, role, joined_at
		FROM members
		WHERE id = ?
	`, id)
	return scanMember(row)
}

// ListMembers lists members in join order.
func (r *Repository) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, name, email, avatar, role, joined_at
		FROM members
		WHERE project_id = ?
		ORDER BY joined_at ASC, rowid ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, member)
	}
	return out, rows.Err()
}

// CreateComment creates comment.
func (r *Repository) CreateComment(ctx context.Context, c domain.Comment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comments(id, project_id, author_id, author_name, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.ProjectID, c.AuthorID, c.AuthorName, c.Message, ts(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert comment: %w", translateConstraint(err))
	}
	return nil
}

// ListComments lists a project's comments chronologically.
func (r *Repository) ListComments(ctx context.Context, projectID string) ([]domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, author_id, author_name, message, created_at
		FROM comments
		WHERE project_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Comment, 0)
	for rows.Next() {
		var (
			c          domain.Comment
			createdRaw string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.AuthorID, &c.AuthorName, &c.Message, &createdRaw); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTS(createdRaw)
		out = append(out, c)
	}
	return out, rows.Err()
}

// joinRequestColumns is the canonical select list for scanJoinRequest.
const joinRequestColumns = `id, project_id, requester_id, requester_name, requester_email, requester_avatar, message, request_date, status, reviewed_by, reviewed_at`

// CreateJoinRequest creates join request.
func (r *Repository) CreateJoinRequest(ctx context.Context, jr domain.JoinRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO join_requests(`+joinRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		jr.ID,
		jr.ProjectID,
		jr.Requester.UserID,
		jr.Requester.Name,
		jr.Requester.Email,
		jr.Requester.Avatar,
		jr.Message,
		ts(jr.RequestDate),
		string(jr.Status),
		jr.ReviewedBy,
		nullableTS(jr.ReviewedAt),
	)
	return translateConstraint(err)
}

// UpdateJoinRequest writes the review fields.
func (r *Repository) UpdateJoinRequest(ctx context.Context, jr domain.JoinRequest) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE join_requests
		SET status = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ?
	`, string(jr.Status), jr.ReviewedBy, nullableTS(jr.ReviewedAt), jr.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetJoinRequest returns join request.
func (r *Repository) GetJoinRequest(ctx context.Context, id string) (domain.JoinRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+joinRequestColumns+` FROM join_requests WHERE id = ?`, id)
	return scanJoinRequest(row)
}

// ListJoinRequests lists a project's join requests in submission order.
func (r *Repository) ListJoinRequests(ctx context.Context, projectID string) ([]domain.JoinRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+joinRequestColumns+`
		FROM join_requests
		WHERE project_id = ?
		ORDER BY request_date ASC, rowid ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.JoinRequest{}
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}

// CreateUser creates user. A taken email returns app.ErrDuplicate.
func (r *Repository) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users(id, name, email, avatar, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.Email, u.Avatar, u.PasswordHash, ts(u.CreatedAt))
	return translateConstraint(err)
}

// GetUser returns user.
func (r *Repository) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, avatar, password_hash, created_at
		FROM users
		WHERE id = ?
	`, id)
	return scanUser(row)
}

// GetUserByEmail returns user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, avatar, password_hash, created_at
		FROM users
		WHERE email = ?
	`, email)
	return scanUser(row)
}

// ListUsers returns users ordered by registration time.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, avatar, password_hash, created_at
		FROM users
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// AppendChangeEvent inserts a change-event ledger record.
func (r *Repository) AppendChangeEvent(ctx context.Context, event domain.ChangeEvent) error {
	return insertChangeEvent(ctx, r.db, event)
}

// ListChangeEvents lists recent project events for activity-log consumption.
func (r *Repository) ListChangeEvents(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, entity_type, entity_id, operation, actor_id, metadata_json, created_at
		FROM change_events
		WHERE project_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			entityRaw   string
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.ProjectID, &entityRaw, &event.EntityID, &opRaw, &event.ActorID, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.EntityType = domain.EntityType(entityRaw)
		event.Operation = normalizeChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// queryRower represents a query-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// getTaskByID returns one task row.
func getTaskByID(ctx context.Context, q queryRower, id string) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(project_id, entity_type, entity_id, operation, actor_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.ProjectID,
		string(event.EntityType),
		event.EntityID,
		string(event.Operation),
		chooseActorID(event.ActorID),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", translateConstraint(err))
	}
	return nil
}

// chooseActorID returns the first non-empty actor id or the anonymous actor.
func chooseActorID(candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" {
			return candidate
		}
	}
	return "anonymous"
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	switch op := domain.ChangeOperation(strings.TrimSpace(strings.ToLower(raw))); op {
	case domain.ChangeOperationCreate,
		domain.ChangeOperationUpdate,
		domain.ChangeOperationStatus,
		domain.ChangeOperationDelete,
		domain.ChangeOperationReview:
		return op
	default:
		return domain.ChangeOperationUpdate
	}
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanProject handles scan project.
func scanProject(s scanner) (domain.Project, error) {
	var (
		p          domain.Project
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, app.ErrNotFound
		}
		return domain.Project{}, err
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	return p, nil
}

// scanTask handles scan task.
func scanTask(s scanner) (domain.Task, error) {
	var (
		t          domain.Task
		projectID  sql.NullString
		dueRaw     string
		priority   string
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(
		&t.ID,
		&projectID,
		&t.Title,
		&t.Description,
		&dueRaw,
		&priority,
		&status,
		&t.AssignedBy,
		&t.AssignedTo,
		&t.CreatedBy,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	t.ProjectID = projectID.String
	t.DueDate = parseDate(dueRaw)
	t.Priority = domain.Priority(priority)
	t.Status = domain.Status(status)
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	return t, nil
}

// scanMember handles scan member.
func scanMember(s scanner) (domain.Member, error) {
	var (
		m         domain.Member
		role      string
		joinedRaw string
	)
	if err := s.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Email, &m.Avatar, &role, &joinedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Member{}, app.ErrNotFound
		}
		return domain.Member{}, err
	}
	m.Role = domain.Role(role)
	m.JoinedAt = parseTS(joinedRaw)
	return m, nil
}

// scanJoinRequest handles scan join request.
func scanJoinRequest(s scanner) (domain.JoinRequest, error) {
	var (
		jr          domain.JoinRequest
		requestRaw  string
		status      string
		reviewedRaw sql.NullString
	)
	if err := s.Scan(
		&jr.ID,
		&jr.ProjectID,
		&jr.Requester.UserID,
		&jr.Requester.Name,
		&jr.Requester.Email,
		&jr.Requester.Avatar,
		&jr.Message,
		&requestRaw,
		&status,
		&jr.ReviewedBy,
		&reviewedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.JoinRequest{}, app.ErrNotFound
		}
		return domain.JoinRequest{}, err
	}
	jr.RequestDate = parseTS(requestRaw)
	jr.Status = domain.JoinRequestStatus(status)
	jr.ReviewedAt = parseNullTS(reviewedRaw)
	return jr, nil
}

// scanUser handles scan user.
func scanUser(s scanner) (domain.User, error) {
	var (
		u          domain.User
		createdRaw string
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar, &u.PasswordHash, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, app.ErrNotFound
		}
		return domain.User{}, err
	}
	u.CreatedAt = parseTS(createdRaw)
	return u, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// translateConstraint maps unique violations to app.ErrDuplicate and dangling references to app.ErrNotFound.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"), strings.Contains(msg, "primary key"):
		return fmt.Errorf("%w: %v", app.ErrDuplicate, err)
	case strings.Contains(msg, "foreign key constraint failed"):
		return fmt.Errorf("%w: %v", app.ErrNotFound, err)
	default:
		return err
	}
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableString stores empty strings as NULL.
func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// dateString formats a calendar date.
func dateString(t time.Time) string {
	return domain.CalendarDate(t).Format(time.DateOnly)
}

// parseDate parses a stored calendar date.
func parseDate(v string) time.Time {
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}
	}
	return d.UTC()
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
