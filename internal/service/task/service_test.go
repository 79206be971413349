package task

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository/memory"
	"github.com/taskflow/taskflow/internal/service/events"
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
	owner   domain.User
	member  domain.User
	outside domain.User
	project domain.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	hub := ws.NewHub(log)
	svc := New(store, store, store, events.New(hub, log), log)

	f := &fixture{
		store:   store,
		hub:     hub,
		svc:     svc,
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
	f.project = domain.Project{
		ID:        uuid.NewString(),
		Name:      "Launch",
		OwnerID:   f.owner.ID,
		MemberIDs: []string{f.member.ID},
		Status:    domain.ProjectActive,
		Priority:  domain.PriorityMedium,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	project := f.project
	if err := store.CreateProject(ctx, &project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return f
}

func TestCreateBroadcastsToProjectScope(t *testing.T) {
	f := newFixture(t)
	sub := &captureSubscriber{}
	f.hub.Join(f.project.ID, sub)
	other := &captureSubscriber{}
	f.hub.Join("another-project", other)

	view, err := f.svc.Create(context.Background(), f.member.ID, CreateInput{
		ProjectID: f.project.ID,
		Title:     "Write launch checklist",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.CreatedBy.ID != f.member.ID || view.CreatedBy.Name != f.member.Name {
		t.Fatalf("createdBy not resolved: %+v", view.CreatedBy)
	}
	if view.Status != domain.TaskTodo {
		t.Fatalf("default status = %q", view.Status)
	}
	if got := sub.types(t); len(got) != 1 || got[0] != string(domain.EventTaskCreated) {
		t.Fatalf("scope events = %v", got)
	}
	if got := other.types(t); len(got) != 0 {
		t.Fatalf("unrelated scope received %v", got)
	}
}

func TestCreateRejectsNonMember(t *testing.T) {
	f := newFixture(t)
	sub := &captureSubscriber{}
	f.hub.Join(f.project.ID, sub)

	_, err := f.svc.Create(context.Background(), f.outside.ID, CreateInput{
		ProjectID: f.project.ID,
		Title:     "Sneak one in",
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if got := sub.types(t); len(got) != 0 {
		t.Fatalf("rejected mutation broadcast %v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		input CreateInput
	}{
		{"missing title", CreateInput{ProjectID: f.project.ID}},
		{"missing project", CreateInput{Title: "orphan"}},
		{"bad status", CreateInput{ProjectID: f.project.ID, Title: "x", Status: "later"}},
		{"bad priority", CreateInput{ProjectID: f.project.ID, Title: "x", Priority: "whenever"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.owner.ID, tc.input)
			if !domain.IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestUpdateStatusRecomputesCompletedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{ProjectID: f.project.ID, Title: "Ship it"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done := string(domain.TaskDone)
	updated, err := f.svc.Update(ctx, f.member.ID, view.ID, UpdateInput{Status: &done})
	if err != nil {
		t.Fatalf("update to done: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatal("completedAt not set on transition to done")
	}

	todo := string(domain.TaskTodo)
	reopened, err := f.svc.Update(ctx, f.member.ID, view.ID, UpdateInput{Status: &todo})
	if err != nil {
		t.Fatalf("update to todo: %v", err)
	}
	if reopened.CompletedAt != nil {
		t.Fatal("completedAt not cleared on transition away from done")
	}
}

func TestUpdateRejectsNonMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{ProjectID: f.project.ID, Title: "Private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	title := "renamed"
	if _, err := f.svc.Update(ctx, f.outside.ID, view.ID, UpdateInput{Title: &title}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestDeleteBroadcastsIDOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{ProjectID: f.project.ID, Title: "Doomed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sub := &captureSubscriber{}
	f.hub.Join(f.project.ID, sub)

	if err := f.svc.Delete(ctx, f.member.ID, view.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.owner.ID, view.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get after delete = %v, want not found", err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(sub.payloads))
	}
	var envelope struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(sub.payloads[0], &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Type != string(domain.EventTaskDeleted) || envelope.Data["id"] != view.ID {
		t.Fatalf("envelope = %+v", envelope)
	}
}

func TestAddCommentKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{ProjectID: f.project.ID, Title: "Discussion"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sub := &captureSubscriber{}
	f.hub.Join(f.project.ID, sub)

	if _, err := f.svc.AddComment(ctx, f.owner.ID, view.ID, "first"); err != nil {
		t.Fatalf("first comment: %v", err)
	}
	withBoth, err := f.svc.AddComment(ctx, f.member.ID, view.ID, "second")
	if err != nil {
		t.Fatalf("second comment: %v", err)
	}
	if len(withBoth.Comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(withBoth.Comments))
	}
	if withBoth.Comments[0].Text != "first" || withBoth.Comments[1].Text != "second" {
		t.Fatalf("comment order = %q, %q", withBoth.Comments[0].Text, withBoth.Comments[1].Text)
	}
	if withBoth.Comments[1].Author.ID != f.member.ID {
		t.Fatalf("author not resolved: %+v", withBoth.Comments[1].Author)
	}
	if got := sub.types(t); len(got) != 2 || got[0] != string(domain.EventTaskCommentAdded) {
		t.Fatalf("scope events = %v", got)
	}

	if _, err := f.svc.AddComment(ctx, f.outside.ID, view.ID, "drive-by"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider comment err = %v, want forbidden", err)
	}
}

func TestAddCommentConcurrentWriters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{ProjectID: f.project.ID, Title: "Standup notes"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, author := range []domain.User{f.owner, f.member} {
		wg.Add(1)
		go func(authorID string) {
			defer wg.Done()
			_, err := f.svc.AddComment(ctx, authorID, view.ID, "from "+authorID)
			errs <- err
		}(author.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent comment: %v", err)
		}
	}

	after, err := f.svc.Get(ctx, f.owner.ID, view.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(after.Comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(after.Comments))
	}
	authors := map[string]bool{}
	for _, c := range after.Comments {
		authors[c.Author.ID] = true
	}
	if !authors[f.owner.ID] || !authors[f.member.ID] {
		t.Fatalf("comment authors = %v, want both writers", authors)
	}
}

func TestListScopesToVisibleProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hidden := domain.Project{
		ID:        uuid.NewString(),
		Name:      "Hidden",
		OwnerID:   f.outside.ID,
		Status:    domain.ProjectActive,
		Priority:  domain.PriorityMedium,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateProject(ctx, &hidden); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.owner.ID, CreateInput{ProjectID: f.project.ID, Title: "visible"}); err != nil {
		t.Fatalf("create visible: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.outside.ID, CreateInput{ProjectID: hidden.ID, Title: "invisible"}); err != nil {
		t.Fatalf("create hidden: %v", err)
	}

	views, err := f.svc.List(ctx, f.member.ID, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 || views[0].Title != "visible" {
		t.Fatalf("list = %+v", views)
	}

	if _, err := f.svc.List(ctx, f.member.ID, ListFilter{ProjectID: hidden.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("filtered list err = %v, want forbidden", err)
	}
}

func TestGetRequiresProjectAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{ProjectID: f.project.ID, Title: "Members only"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.outside.ID, view.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider get err = %v, want forbidden", err)
	}
	if _, err := f.svc.Get(ctx, f.member.ID, view.ID); err != nil {
		t.Fatalf("member get: %v", err)
	}
}
