package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/procertify/studio/backend-go/internal/db"
	"github.com/procertify/studio/backend-go/internal/document"
	"github.com/procertify/studio/backend-go/internal/typeid"
)

var (
	ErrNotFound     = errors.New("project not found")
	ErrForbidden    = errors.New("forbidden")
	ErrNotMember    = errors.New("not a project member")
	ErrInvalidInput = errors.New("invalid input")
	ErrUserNotFound = errors.New("user not found")
)

const (
	maxCanvasSide = 10000
	keepSnapshots = 50
)

// Store is the subset of db.Queries the service needs.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (db.User, error)
	CreateProject(ctx context.Context, arg db.CreateProjectParams) (db.Project, error)
	GetProject(ctx context.Context, id string) (db.Project, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]db.Project, error)
	UpdateProject(ctx context.Context, arg db.UpdateProjectParams) (db.Project, error)
	TouchProject(ctx context.Context, id string) error
	DeleteProject(ctx context.Context, id string) error
	AddProjectMember(ctx context.Context, arg db.AddProjectMemberParams) error
	GetProjectMember(ctx context.Context, arg db.GetProjectMemberParams) (db.ProjectMember, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]db.ProjectMemberRow, error)
	RemoveProjectMember(ctx context.Context, arg db.RemoveProjectMemberParams) error
	CreateSnapshot(ctx context.Context, arg db.CreateSnapshotParams) (db.Snapshot, error)
	GetLatestSnapshot(ctx context.Context, projectID string) (db.Snapshot, error)
	PruneSnapshots(ctx context.Context, arg db.PruneSnapshotsParams) error
}

var _ Store = (*db.Queries)(nil)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type Project struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	OwnerID         string `json:"ownerId"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	FilenamePattern string `json:"filenamePattern"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

type Member struct {
	UserID      string `json:"userId"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type CreateParams struct {
	Name   string
	Width  int
	Height int
	Sample bool
}

type UpdateParams struct {
	Name            *string
	Width           *int
	Height          *int
	FilenamePattern *string
}

func (s *Service) Create(ctx context.Context, ownerID string, params CreateParams) (*Project, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	width, height := params.Width, params.Height
	if width == 0 && height == 0 {
		width, height = document.DefaultWidth, document.DefaultHeight
	}
	if err := validateSize(width, height); err != nil {
		return nil, err
	}

	projectID := typeid.NewProjectID()

	var doc *document.Project
	if params.Sample {
		doc = document.NewSampleProject(projectID)
		doc.Name = name
	} else {
		doc = document.NewEmptyProject(projectID, name)
	}
	doc.Width, doc.Height = width, height

	dbProj, err := s.store.CreateProject(ctx, db.CreateProjectParams{
		ID:              projectID,
		Name:            name,
		OwnerID:         ownerID,
		Width:           int32(width),
		Height:          int32(height),
		FilenamePattern: doc.FilenamePattern,
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	err = s.store.AddProjectMember(ctx, db.AddProjectMemberParams{
		ProjectID: projectID,
		UserID:    ownerID,
		Role:      db.ProjectRoleOwner,
	})
	if err != nil {
		return nil, fmt.Errorf("add owner as member: %w", err)
	}

	if err := s.createSnapshot(ctx, projectID, 1, doc); err != nil {
		return nil, fmt.Errorf("create initial snapshot: %w", err)
	}

	return dbProjectToProject(dbProj), nil
}

func (s *Service) Get(ctx context.Context, projectID, userID string) (*Project, error) {
	dbProj, err := s.authorize(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	return dbProjectToProject(dbProj), nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Project, error) {
	dbProjects, err := s.store.ListProjectsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]Project, len(dbProjects))
	for i, p := range dbProjects {
		projects[i] = *dbProjectToProject(p)
	}

	return projects, nil
}

// Update changes project metadata. Any member may edit.
func (s *Service) Update(ctx context.Context, projectID, userID string, params UpdateParams) (*Project, error) {
	dbProj, err := s.authorize(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	arg := db.UpdateProjectParams{
		ID:              projectID,
		Name:            dbProj.Name,
		Width:           dbProj.Width,
		Height:          dbProj.Height,
		FilenamePattern: dbProj.FilenamePattern,
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		arg.Name = name
	}
	if params.Width != nil {
		arg.Width = int32(*params.Width)
	}
	if params.Height != nil {
		arg.Height = int32(*params.Height)
	}
	if err := validateSize(int(arg.Width), int(arg.Height)); err != nil {
		return nil, err
	}
	if params.FilenamePattern != nil {
		arg.FilenamePattern = strings.TrimSpace(*params.FilenamePattern)
	}

	updated, err := s.store.UpdateProject(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return dbProjectToProject(updated), nil
}

func (s *Service) Delete(ctx context.Context, projectID, userID string) error {
	if _, err := s.requireOwner(ctx, projectID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *Service) InviteByEmail(ctx context.Context, projectID, ownerID, inviteeEmail string) error {
	if _, err := s.requireOwner(ctx, projectID, ownerID); err != nil {
		return err
	}

	invitee, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(inviteeEmail)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}

	return s.store.AddProjectMember(ctx, db.AddProjectMemberParams{
		ProjectID: projectID,
		UserID:    invitee.ID,
		Role:      db.ProjectRoleEditor,
	})
}

func (s *Service) ListMembers(ctx context.Context, projectID, userID string) ([]Member, error) {
	if _, err := s.authorize(ctx, projectID, userID); err != nil {
		return nil, err
	}

	dbMembers, err := s.store.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	members := make([]Member, len(dbMembers))
	for i, m := range dbMembers {
		members[i] = Member{
			UserID:      m.UserID,
			Role:        string(m.Role),
			DisplayName: m.DisplayName,
			Email:       m.Email,
		}
	}

	return members, nil
}

func (s *Service) RemoveMember(ctx context.Context, projectID, ownerID, targetUserID string) error {
	if _, err := s.requireOwner(ctx, projectID, ownerID); err != nil {
		return err
	}
	if targetUserID == ownerID {
		return fmt.Errorf("%w: cannot remove project owner", ErrInvalidInput)
	}

	return s.store.RemoveProjectMember(ctx, db.RemoveProjectMemberParams{
		ProjectID: projectID,
		UserID:    targetUserID,
	})
}

func (s *Service) GetLatestSnapshot(ctx context.Context, projectID, userID string) (json.RawMessage, error) {
	if _, err := s.authorize(ctx, projectID, userID); err != nil {
		return nil, err
	}

	snap, err := s.store.GetLatestSnapshot(ctx, projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	return snap.Document, nil
}

// Document returns the latest document of a project the user belongs to,
// with metadata taken from the project row.
func (s *Service) Document(ctx context.Context, projectID, userID string) (*document.Project, error) {
	dbProj, err := s.authorize(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	return s.latest(ctx, dbProj)
}

// CheckAccess reports whether userID may open the project.
func (s *Service) CheckAccess(ctx context.Context, projectID, userID string) error {
	_, err := s.authorize(ctx, projectID, userID)
	return err
}

// LoadDocument returns the latest snapshot without an access check. It is
// used by the collaboration hub after the connection was authorized.
func (s *Service) LoadDocument(ctx context.Context, projectID string) (*document.Project, error) {
	dbProj, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.latest(ctx, dbProj)
}

// SaveDocument stores doc as the next snapshot version and copies its name
// and filename pattern to the project row.
func (s *Service) SaveDocument(ctx context.Context, projectID string, doc *document.Project) error {
	version := int32(1)
	snap, err := s.store.GetLatestSnapshot(ctx, projectID)
	switch {
	case err == nil:
		version = snap.Version + 1
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("get snapshot: %w", err)
	}

	if err := s.createSnapshot(ctx, projectID, version, doc); err != nil {
		return err
	}

	dbProj, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		name = dbProj.Name
	}
	if name != dbProj.Name || doc.FilenamePattern != dbProj.FilenamePattern {
		_, err = s.store.UpdateProject(ctx, db.UpdateProjectParams{
			ID:              projectID,
			Name:            name,
			Width:           dbProj.Width,
			Height:          dbProj.Height,
			FilenamePattern: doc.FilenamePattern,
		})
	} else {
		err = s.store.TouchProject(ctx, projectID)
	}
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	if version > keepSnapshots {
		err := s.store.PruneSnapshots(ctx, db.PruneSnapshotsParams{ProjectID: projectID, Keep: keepSnapshots})
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
	}
	return nil
}

// latest decodes the newest snapshot and overlays the metadata kept on the
// project row.
func (s *Service) latest(ctx context.Context, dbProj db.Project) (*document.Project, error) {
	snap, err := s.store.GetLatestSnapshot(ctx, dbProj.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var doc document.Project
	if err := json.Unmarshal(snap.Document, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
	}
	doc.Name = dbProj.Name
	doc.Width, doc.Height = int(dbProj.Width), int(dbProj.Height)
	doc.FilenamePattern = dbProj.FilenamePattern
	return &doc, nil
}

func (s *Service) createSnapshot(ctx context.Context, projectID string, version int32, doc *document.Project) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.store.CreateSnapshot(ctx, db.CreateSnapshotParams{
		ID:        typeid.NewSnapshotID(),
		ProjectID: projectID,
		Version:   version,
		Document:  docJSON,
	})
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

// authorize loads the project and checks that userID is a member.
func (s *Service) authorize(ctx context.Context, projectID, userID string) (db.Project, error) {
	dbProj, err := s.getProject(ctx, projectID)
	if err != nil {
		return db.Project{}, err
	}

	_, err = s.store.GetProjectMember(ctx, db.GetProjectMemberParams{
		ProjectID: projectID,
		UserID:    userID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Project{}, ErrNotMember
		}
		return db.Project{}, fmt.Errorf("check membership: %w", err)
	}
	return dbProj, nil
}

func (s *Service) requireOwner(ctx context.Context, projectID, userID string) (db.Project, error) {
	dbProj, err := s.getProject(ctx, projectID)
	if err != nil {
		return db.Project{}, err
	}
	if dbProj.OwnerID != userID {
		return db.Project{}, ErrForbidden
	}
	return dbProj, nil
}

func (s *Service) getProject(ctx context.Context, projectID string) (db.Project, error) {
	dbProj, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Project{}, ErrNotFound
		}
		return db.Project{}, fmt.Errorf("get project: %w", err)
	}
	return dbProj, nil
}

func validateSize(width, height int) error {
	if width <= 0 || height <= 0 || width > maxCanvasSide || height > maxCanvasSide {
		return fmt.Errorf("%w: canvas size must be between 1 and %d", ErrInvalidInput, maxCanvasSide)
	}
	return nil
}

func dbProjectToProject(p db.Project) *Project {
	return &Project{
		ID:              p.ID,
		Name:            p.Name,
		OwnerID:         p.OwnerID,
		Width:           int(p.Width),
		Height:          int(p.Height),
		FilenamePattern: p.FilenamePattern,
		CreatedAt:       p.CreatedAt.Time.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:       p.UpdatedAt.Time.Format("2006-01-02T15:04:05Z"),
	}
}
