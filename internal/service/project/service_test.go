package project

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository/memory"
	"github.com/taskflow/taskflow/internal/service/events"
	"github.com/taskflow/taskflow/internal/service/task"
	"github.com/taskflow/taskflow/internal/ws"
)

type captureSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *captureSubscriber) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *captureSubscriber) Close() {}

func (c *captureSubscriber) types(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.payloads))
	for _, p := range c.payloads {
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(p, &envelope); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		out = append(out, envelope.Type)
	}
	return out
}

type fixture struct {
	store   *memory.Store
	hub     *ws.Hub
	svc     Service
	tasks   task.Service
	owner   domain.User
	member  domain.User
	outside domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	hub := ws.NewHub(log)
	publisher := events.New(hub, log)

	f := &fixture{
		store:   store,
		hub:     hub,
		svc:     New(store, store, store, store, publisher, log),
		tasks:   task.New(store, store, store, publisher, log),
		owner:   domain.User{ID: uuid.NewString(), Name: "Owner", Email: "owner@example.com"},
		member:  domain.User{ID: uuid.NewString(), Name: "Member", Email: "member@example.com"},
		outside: domain.User{ID: uuid.NewString(), Name: "Outsider", Email: "outside@example.com"},
	}
	ctx := context.Background()
	for _, u := range []domain.User{f.owner, f.member, f.outside} {
		user := u
		if err := store.CreateUser(ctx, &user); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	return f
}

func (f *fixture) createProject(t *testing.T) *domain.ProjectView {
	t.Helper()
	view, err := f.svc.Create(context.Background(), f.owner.ID, CreateInput{Name: "Launch"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return view
}

func TestCreateDefaultsAndBroadcast(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.Create(context.Background(), f.owner.ID, CreateInput{Name: "  Launch  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.Name != "Launch" {
		t.Fatalf("name = %q", view.Name)
	}
	if view.Status != domain.ProjectPlanning || view.Priority != domain.PriorityMedium {
		t.Fatalf("defaults = %s/%s", view.Status, view.Priority)
	}
	if view.Owner.ID != f.owner.ID || view.Owner.Email != f.owner.Email {
		t.Fatalf("owner not resolved: %+v", view.Owner)
	}

	// Creation is broadcast to the new project's own scope; a subscriber
	// can only exist there after the id is known, so join and mutate again.
	sub := &captureSubscriber{}
	f.hub.Join(view.ID, sub)
	name := "Launch v2"
	if _, err := f.svc.Update(context.Background(), f.owner.ID, view.ID, UpdateInput{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := sub.types(t); len(got) != 1 || got[0] != string(domain.EventProjectUpdated) {
		t.Fatalf("scope events = %v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(context.Background(), f.owner.ID, CreateInput{}); !domain.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, err := f.svc.Create(context.Background(), f.owner.ID, CreateInput{Name: "x", Status: "someday"}); !domain.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	missing := uuid.NewString()
	if _, err := f.svc.Create(context.Background(), f.owner.ID, CreateInput{Name: "x", TeamID: &missing}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestGetEmbedsTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.createProject(t)
	if _, err := f.tasks.Create(ctx, f.owner.ID, task.CreateInput{ProjectID: view.ID, Title: "First task"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	got, err := f.svc.Get(ctx, f.owner.ID, view.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Title != "First task" {
		t.Fatalf("tasks = %+v", got.Tasks)
	}
	if got.Tasks[0].CreatedBy.Name != f.owner.Name {
		t.Fatalf("task createdBy not resolved: %+v", got.Tasks[0].CreatedBy)
	}

	if _, err := f.svc.Get(ctx, f.outside.ID, view.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider get err = %v, want forbidden", err)
	}
}

func TestAddMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.createProject(t)
	sub := &captureSubscriber{}
	f.hub.Join(view.ID, sub)

	updated, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, f.member.ID)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if len(updated.Members) != 1 || updated.Members[0].ID != f.member.ID {
		t.Fatalf("members = %+v", updated.Members)
	}
	if got := sub.types(t); len(got) != 1 || got[0] != string(domain.EventProjectUpdated) {
		t.Fatalf("scope events = %v", got)
	}

	// Duplicate add and re-adding the owner both conflict.
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, f.member.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate err = %v, want conflict", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, f.owner.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("owner err = %v, want conflict", err)
	}

	// Members cannot grow the member set; unknown users are not found.
	if _, err := f.svc.AddMember(ctx, f.member.ID, view.ID, f.outside.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member add err = %v, want forbidden", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown user err = %v, want not found", err)
	}
}

func TestMembershipUnlocksAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.createProject(t)

	if _, err := f.svc.Get(ctx, f.member.ID, view.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("pre-membership get err = %v, want forbidden", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, f.member.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.member.ID, view.ID); err != nil {
		t.Fatalf("post-membership get: %v", err)
	}
}

func TestUpdateAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.createProject(t)
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, f.member.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	status := string(domain.ProjectActive)
	if _, err := f.svc.Update(ctx, f.member.ID, view.ID, UpdateInput{Status: &status}); err != nil {
		t.Fatalf("member update: %v", err)
	}
	name := "hijack"
	if _, err := f.svc.Update(ctx, f.outside.ID, view.ID, UpdateInput{Name: &name}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider update err = %v, want forbidden", err)
	}
}

func TestDeleteCascadesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.createProject(t)
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, f.member.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	taskView, err := f.tasks.Create(ctx, f.owner.ID, task.CreateInput{ProjectID: view.ID, Title: "Doomed"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Delete is owner-only; members may mutate but not destroy.
	if err := f.svc.Delete(ctx, f.member.ID, view.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member delete err = %v, want forbidden", err)
	}

	sub := &captureSubscriber{}
	f.hub.Join(view.ID, sub)
	if err := f.svc.Delete(ctx, f.owner.ID, view.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.owner.ID, view.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get after delete = %v, want not found", err)
	}
	if _, err := f.tasks.Get(ctx, f.owner.ID, taskView.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("task after cascade = %v, want not found", err)
	}
	if got := sub.types(t); len(got) != 1 || got[0] != string(domain.EventProjectDeleted) {
		t.Fatalf("scope events = %v", got)
	}
}

func TestListReturnsOwnedAndJoined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.createProject(t)
	if _, err := f.svc.Create(ctx, f.outside.ID, CreateInput{Name: "Theirs"}); err != nil {
		t.Fatalf("create other project: %v", err)
	}

	views, err := f.svc.List(ctx, f.owner.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 || views[0].ID != mine.ID {
		t.Fatalf("list = %+v", views)
	}
}
