package project

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/procertify/studio/backend-go/internal/auth"
	"github.com/procertify/studio/backend-go/internal/db"
	"github.com/procertify/studio/backend-go/internal/document"
)

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	users     map[string]db.User
	projects  map[string]db.Project
	members   map[[2]string]db.ProjectRole
	snapshots map[string][]db.Snapshot
	pruned    int
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]db.User{},
		projects:  map[string]db.Project{},
		members:   map[[2]string]db.ProjectRole{},
		snapshots: map[string][]db.Snapshot{},
	}
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return db.User{}, pgx.ErrNoRows
}

func (m *memStore) CreateProject(_ context.Context, arg db.CreateProjectParams) (db.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := db.Project{
		ID:              arg.ID,
		Name:            arg.Name,
		OwnerID:         arg.OwnerID,
		Width:           arg.Width,
		Height:          arg.Height,
		FilenamePattern: arg.FilenamePattern,
	}
	m.projects[p.ID] = p
	return p, nil
}

func (m *memStore) GetProject(_ context.Context, id string) (db.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return db.Project{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *memStore) ListProjectsForUser(_ context.Context, userID string) ([]db.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Project
	for key := range m.members {
		if key[1] == userID {
			out = append(out, m.projects[key[0]])
		}
	}
	return out, nil
}

func (m *memStore) UpdateProject(_ context.Context, arg db.UpdateProjectParams) (db.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[arg.ID]
	if !ok {
		return db.Project{}, pgx.ErrNoRows
	}
	p.Name, p.Width, p.Height, p.FilenamePattern = arg.Name, arg.Width, arg.Height, arg.FilenamePattern
	m.projects[p.ID] = p
	return p, nil
}

func (m *memStore) TouchProject(context.Context, string) error { return nil }

func (m *memStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	delete(m.snapshots, id)
	for key := range m.members {
		if key[0] == id {
			delete(m.members, key)
		}
	}
	return nil
}

func (m *memStore) AddProjectMember(_ context.Context, arg db.AddProjectMemberParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{arg.ProjectID, arg.UserID}
	if _, ok := m.members[key]; !ok {
		m.members[key] = arg.Role
	}
	return nil
}

func (m *memStore) GetProjectMember(_ context.Context, arg db.GetProjectMemberParams) (db.ProjectMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.members[[2]string{arg.ProjectID, arg.UserID}]
	if !ok {
		return db.ProjectMember{}, pgx.ErrNoRows
	}
	return db.ProjectMember{ProjectID: arg.ProjectID, UserID: arg.UserID, Role: role}, nil
}

func (m *memStore) ListProjectMembers(_ context.Context, projectID string) ([]db.ProjectMemberRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.ProjectMemberRow
	for key, role := range m.members {
		if key[0] == projectID {
			u := m.users[key[1]]
			out = append(out, db.ProjectMemberRow{UserID: key[1], Role: role, DisplayName: u.DisplayName, Email: u.Email})
		}
	}
	return out, nil
}

func (m *memStore) RemoveProjectMember(_ context.Context, arg db.RemoveProjectMemberParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, [2]string{arg.ProjectID, arg.UserID})
	return nil
}

func (m *memStore) CreateSnapshot(_ context.Context, arg db.CreateSnapshotParams) (db.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := db.Snapshot{ID: arg.ID, ProjectID: arg.ProjectID, Version: arg.Version, Document: arg.Document}
	m.snapshots[arg.ProjectID] = append(m.snapshots[arg.ProjectID], s)
	return s, nil
}

func (m *memStore) GetLatestSnapshot(_ context.Context, projectID string) (db.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.snapshots[projectID]
	if len(snaps) == 0 {
		return db.Snapshot{}, pgx.ErrNoRows
	}
	return snaps[len(snaps)-1], nil
}

func (m *memStore) PruneSnapshots(_ context.Context, arg db.PruneSnapshotsParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned++
	snaps := m.snapshots[arg.ProjectID]
	if n := len(snaps) - int(arg.Keep); n > 0 {
		m.snapshots[arg.ProjectID] = snaps[n:]
	}
	return nil
}

func TestCreateSeedsSnapshot(t *testing.T) {
	store := newMemStore()
	s := NewService(store)
	ctx := context.Background()

	p, err := s.Create(ctx, "user_owner", CreateParams{Name: "  Kurs  "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "Kurs" || p.Width != document.DefaultWidth || p.Height != document.DefaultHeight {
		t.Fatalf("project = %+v", p)
	}

	doc, err := s.Document(ctx, p.ID, "user_owner")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.ID != p.ID || len(doc.Front.Elements) != 0 || len(doc.Back.Elements) != 0 {
		t.Fatalf("doc = %+v", doc)
	}
	if store.snapshots[p.ID][0].Version != 1 {
		t.Fatalf("first version = %d", store.snapshots[p.ID][0].Version)
	}
}

func TestCreateSample(t *testing.T) {
	s := NewService(newMemStore())
	ctx := context.Background()

	p, err := s.Create(ctx, "user_owner", CreateParams{Name: "Demo", Width: 1000, Height: 700, Sample: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.FilenamePattern == "" {
		t.Fatal("sample project has no filename pattern")
	}
	doc, err := s.Document(ctx, p.ID, "user_owner")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Name != "Demo" || doc.Width != 1000 || len(doc.Front.Elements) == 0 {
		t.Fatalf("doc = %s %d %d", doc.Name, doc.Width, len(doc.Front.Elements))
	}
}

func TestCreateValidation(t *testing.T) {
	s := NewService(newMemStore())
	for _, params := range []CreateParams{
		{Name: " "},
		{Name: "a", Width: -1, Height: 10},
		{Name: "a", Width: 20000, Height: 10},
		{Name: "a", Width: 100},
	} {
		if _, err := s.Create(context.Background(), "u", params); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Create(%+v) err = %v, want ErrInvalidInput", params, err)
		}
	}
}

func TestAccessControl(t *testing.T) {
	store := newMemStore()
	store.users["user_editor"] = db.User{ID: "user_editor", Email: "editor@example.com"}
	s := NewService(store)
	ctx := context.Background()

	p, _ := s.Create(ctx, "user_owner", CreateParams{Name: "P"})

	if _, err := s.Document(ctx, p.ID, "user_editor"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("non-member err = %v", err)
	}
	if _, err := s.Document(ctx, "proj_missing", "user_owner"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}

	if err := s.InviteByEmail(ctx, p.ID, "user_editor", "editor@example.com"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner invite err = %v", err)
	}
	if err := s.InviteByEmail(ctx, p.ID, "user_owner", "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown invitee err = %v", err)
	}
	if err := s.InviteByEmail(ctx, p.ID, "user_owner", " Editor@Example.com "); err != nil {
		t.Fatalf("invite: %v", err)
	}

	if err := s.CheckAccess(ctx, p.ID, "user_editor"); err != nil {
		t.Fatalf("editor access: %v", err)
	}
	if err := s.Delete(ctx, p.ID, "user_editor"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("editor delete err = %v", err)
	}
	if err := s.RemoveMember(ctx, p.ID, "user_owner", "user_owner"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("remove owner err = %v", err)
	}
	if err := s.RemoveMember(ctx, p.ID, "user_owner", "user_editor"); err != nil {
		t.Fatalf("remove editor: %v", err)
	}
	if err := s.CheckAccess(ctx, p.ID, "user_editor"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("removed editor err = %v", err)
	}
	if err := s.Delete(ctx, p.ID, "user_owner"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, p.ID, "user_owner"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted project err = %v", err)
	}
}

func TestUpdateMetadataFlowsIntoDocument(t *testing.T) {
	s := NewService(newMemStore())
	ctx := context.Background()
	p, _ := s.Create(ctx, "user_owner", CreateParams{Name: "P"})

	pattern := "{Ad Soyad}"
	width := 800
	updated, err := s.Update(ctx, p.ID, "user_owner", UpdateParams{Width: &width, FilenamePattern: &pattern})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Width != 800 || updated.Height != document.DefaultHeight || updated.FilenamePattern != pattern {
		t.Fatalf("updated = %+v", updated)
	}

	doc, _ := s.Document(ctx, p.ID, "user_owner")
	if doc.Width != 800 || doc.FilenamePattern != pattern {
		t.Fatalf("doc metadata = %d %q", doc.Width, doc.FilenamePattern)
	}

	empty := ""
	if _, err := s.Update(ctx, p.ID, "user_owner", UpdateParams{Name: &empty}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty name err = %v", err)
	}
}

func TestSaveDocumentVersions(t *testing.T) {
	store := newMemStore()
	s := NewService(store)
	ctx := context.Background()
	p, _ := s.Create(ctx, "user_owner", CreateParams{Name: "P"})

	doc, err := s.LoadDocument(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	doc.Name = "Renamed"
	doc.Front.Elements = append(doc.Front.Elements, document.NewElement(document.ElementText, 10, 10))

	for i := 0; i < keepSnapshots+1; i++ {
		if err := s.SaveDocument(ctx, p.ID, doc); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}
	}

	latest := store.snapshots[p.ID][len(store.snapshots[p.ID])-1]
	if latest.Version != keepSnapshots+2 {
		t.Fatalf("latest version = %d", latest.Version)
	}
	if store.pruned == 0 || len(store.snapshots[p.ID]) > keepSnapshots {
		t.Fatalf("snapshots not pruned: %d kept", len(store.snapshots[p.ID]))
	}
	if store.projects[p.ID].Name != "Renamed" {
		t.Fatalf("project name = %q", store.projects[p.ID].Name)
	}

	raw, err := s.GetLatestSnapshot(ctx, p.ID, "user_owner")
	if err != nil {
		t.Fatal(err)
	}
	var stored document.Project
	if err := json.Unmarshal(raw, &stored); err != nil || len(stored.Front.Elements) != 1 {
		t.Fatalf("stored doc: %v %+v", err, stored.Front)
	}
}

func TestHandlerErrors(t *testing.T) {
	s := NewService(newMemStore())
	h := NewHandler(s)
	p, _ := s.Create(context.Background(), "user_owner", CreateParams{Name: "P"})

	router := mux.NewRouter()
	router.HandleFunc("/api/projects", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{projectId}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{projectId}", h.Update).Methods(http.MethodPatch)

	tests := []struct {
		method, path, user, body string
		want                     int
	}{
		{http.MethodPost, "/api/projects", "user_owner", `{"name":""}`, http.StatusBadRequest},
		{http.MethodPost, "/api/projects", "user_owner", `{"name":"New"}`, http.StatusCreated},
		{http.MethodGet, "/api/projects/" + p.ID, "user_owner", "", http.StatusOK},
		{http.MethodGet, "/api/projects/" + p.ID, "user_other", "", http.StatusForbidden},
		{http.MethodGet, "/api/projects/proj_missing", "user_owner", "", http.StatusNotFound},
		{http.MethodPatch, "/api/projects/" + p.ID, "user_owner", `{"width":0}`, http.StatusBadRequest},
		{http.MethodPatch, "/api/projects/" + p.ID, "user_owner", `{"name":"Yeni"}`, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		req = req.WithContext(auth.WithUserID(req.Context(), tt.user))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s as %s = %d, want %d (%s)", tt.method, tt.path, tt.user, rec.Code, tt.want, rec.Body)
		}
	}
}
