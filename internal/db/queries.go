package db

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type ProjectRole string

const (
	ProjectRoleOwner  ProjectRole = "owner"
	ProjectRoleEditor ProjectRole = "editor"
)

type User struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
	CreatedAt   pgtype.Timestamptz
}

type Project struct {
	ID              string
	Name            string
	OwnerID         string
	Width           int32
	Height          int32
	FilenamePattern string
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

type ProjectMember struct {
	ProjectID string
	UserID    string
	Role      ProjectRole
	CreatedAt pgtype.Timestamptz
}

type ProjectMemberRow struct {
	UserID      string
	Role        ProjectRole
	DisplayName string
	Email       string
}

type Snapshot struct {
	ID        string
	ProjectID string
	Version   int32
	Document  json.RawMessage
	CreatedAt pgtype.Timestamptz
}

const createUser = `
INSERT INTO users (id, email, password, display_name)
VALUES ($1, $2, $3, $4)
RETURNING id, email, password, display_name, created_at`

type CreateUserParams struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.ID, arg.Email, arg.Password, arg.DisplayName)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, email, password, display_name, created_at FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

const getUserByID = `
SELECT id, email, password, display_name, created_at FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

const projectColumns = `id, name, owner_id, width, height, filename_pattern, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.Width, &p.Height, &p.FilenamePattern, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const createProject = `
INSERT INTO projects (id, name, owner_id, width, height, filename_pattern)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + projectColumns

type CreateProjectParams struct {
	ID              string
	Name            string
	OwnerID         string
	Width           int32
	Height          int32
	FilenamePattern string
}

func (q *Queries) CreateProject(ctx context.Context, arg CreateProjectParams) (Project, error) {
	return scanProject(q.db.QueryRow(ctx, createProject, arg.ID, arg.Name, arg.OwnerID, arg.Width, arg.Height, arg.FilenamePattern))
}

const getProject = `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

func (q *Queries) GetProject(ctx context.Context, id string) (Project, error) {
	return scanProject(q.db.QueryRow(ctx, getProject, id))
}

const listProjectsForUser = `
SELECT p.id, p.name, p.owner_id, p.width, p.height, p.filename_pattern, p.created_at, p.updated_at
FROM projects p
JOIN project_members m ON m.project_id = p.id
WHERE m.user_id = $1
ORDER BY p.updated_at DESC`

func (q *Queries) ListProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := q.db.Query(ctx, listProjectsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const updateProject = `
UPDATE projects
SET name = $2, width = $3, height = $4, filename_pattern = $5, updated_at = now()
WHERE id = $1
RETURNING ` + projectColumns

type UpdateProjectParams struct {
	ID              string
	Name            string
	Width           int32
	Height          int32
	FilenamePattern string
}

func (q *Queries) UpdateProject(ctx context.Context, arg UpdateProjectParams) (Project, error) {
	return scanProject(q.db.QueryRow(ctx, updateProject, arg.ID, arg.Name, arg.Width, arg.Height, arg.FilenamePattern))
}

const touchProject = `UPDATE projects SET updated_at = now() WHERE id = $1`

func (q *Queries) TouchProject(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, touchProject, id)
	return err
}

const deleteProject = `DELETE FROM projects WHERE id = $1`

func (q *Queries) DeleteProject(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, deleteProject, id)
	return err
}

const addProjectMember = `
INSERT INTO project_members (project_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (project_id, user_id) DO NOTHING`

type AddProjectMemberParams struct {
	ProjectID string
	UserID    string
	Role      ProjectRole
}

func (q *Queries) AddProjectMember(ctx context.Context, arg AddProjectMemberParams) error {
	_, err := q.db.Exec(ctx, addProjectMember, arg.ProjectID, arg.UserID, arg.Role)
	return err
}

const getProjectMember = `
SELECT project_id, user_id, role, created_at
FROM project_members
WHERE project_id = $1 AND user_id = $2`

type GetProjectMemberParams struct {
	ProjectID string
	UserID    string
}

func (q *Queries) GetProjectMember(ctx context.Context, arg GetProjectMemberParams) (ProjectMember, error) {
	row := q.db.QueryRow(ctx, getProjectMember, arg.ProjectID, arg.UserID)
	var m ProjectMember
	err := row.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt)
	return m, err
}

const listProjectMembers = `
SELECT m.user_id, m.role, u.display_name, u.email
FROM project_members m
JOIN users u ON u.id = m.user_id
WHERE m.project_id = $1
ORDER BY m.created_at`

func (q *Queries) ListProjectMembers(ctx context.Context, projectID string) ([]ProjectMemberRow, error) {
	rows, err := q.db.Query(ctx, listProjectMembers, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ProjectMemberRow
	for rows.Next() {
		var m ProjectMemberRow
		if err := rows.Scan(&m.UserID, &m.Role, &m.DisplayName, &m.Email); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const removeProjectMember = `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`

type RemoveProjectMemberParams struct {
	ProjectID string
	UserID    string
}

func (q *Queries) RemoveProjectMember(ctx context.Context, arg RemoveProjectMemberParams) error {
	_, err := q.db.Exec(ctx, removeProjectMember, arg.ProjectID, arg.UserID)
	return err
}

const createSnapshot = `
INSERT INTO snapshots (id, project_id, version, document)
VALUES ($1, $2, $3, $4)
RETURNING id, project_id, version, document, created_at`

type CreateSnapshotParams struct {
	ID        string
	ProjectID string
	Version   int32
	Document  json.RawMessage
}

func (q *Queries) CreateSnapshot(ctx context.Context, arg CreateSnapshotParams) (Snapshot, error) {
	row := q.db.QueryRow(ctx, createSnapshot, arg.ID, arg.ProjectID, arg.Version, arg.Document)
	var s Snapshot
	err := row.Scan(&s.ID, &s.ProjectID, &s.Version, &s.Document, &s.CreatedAt)
	return s, err
}

const getLatestSnapshot = `
SELECT id, project_id, version, document, created_at
FROM snapshots
WHERE project_id = $1
ORDER BY version DESC
LIMIT 1`

func (q *Queries) GetLatestSnapshot(ctx context.Context, projectID string) (Snapshot, error) {
	row := q.db.QueryRow(ctx, getLatestSnapshot, projectID)
	var s Snapshot
	err := row.Scan(&s.ID, &s.ProjectID, &s.Version, &s.Document, &s.CreatedAt)
	return s, err
}

const pruneSnapshots = `
DELETE FROM snapshots
WHERE project_id = $1 AND version <= (
    SELECT max(version) - $2 FROM snapshots WHERE project_id = $1
)`

type PruneSnapshotsParams struct {
	ProjectID string
	Keep      int32
}

// PruneSnapshots deletes all but the newest Keep snapshots of a project.
func (q *Queries) PruneSnapshots(ctx context.Context, arg PruneSnapshotsParams) error {
	_, err := q.db.Exec(ctx, pruneSnapshots, arg.ProjectID, arg.Keep)
	return err
}
