package team

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository/memory"
)

type fixture struct {
	store   *memory.Store
	svc     Service
	owner   domain.User
	member  domain.User
	outside domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	f := &fixture{
		store:   store,
		svc:     New(store, store, store, log),
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

func TestCreateSeedsOwnerMembership(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Create(context.Background(), f.owner.ID, CreateInput{Name: "Platform"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.Owner.ID != f.owner.ID {
		t.Fatalf("owner = %+v", view.Owner)
	}
	if len(view.Members) != 1 || view.Members[0].User.ID != f.owner.ID || view.Members[0].Role != domain.TeamRoleAdmin {
		t.Fatalf("members = %+v", view.Members)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(context.Background(), f.owner.ID, CreateInput{}); !domain.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestAddMemberRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{Name: "Platform"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, AddMemberInput{UserID: f.member.ID})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if len(updated.Members) != 2 {
		t.Fatalf("members = %+v", updated.Members)
	}
	if updated.Members[1].Role != domain.TeamRoleMember {
		t.Fatalf("default role = %q", updated.Members[1].Role)
	}

	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, AddMemberInput{UserID: f.member.ID}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate err = %v, want conflict", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, AddMemberInput{UserID: uuid.NewString()}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown user err = %v, want not found", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, AddMemberInput{UserID: f.outside.ID, Role: "overlord"}); !domain.IsValidation(err) {
		t.Fatalf("bad role err = %v, want validation error", err)
	}

	// A plain member cannot grow the roster, but an admin member can.
	if _, err := f.svc.AddMember(ctx, f.member.ID, view.ID, AddMemberInput{UserID: f.outside.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member add err = %v, want forbidden", err)
	}
}

func TestAdminMemberCanManageRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{Name: "Platform"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, AddMemberInput{UserID: f.member.ID, Role: "admin"}); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if _, err := f.svc.AddMember(ctx, f.member.ID, view.ID, AddMemberInput{UserID: f.outside.ID}); err != nil {
		t.Fatalf("admin member add: %v", err)
	}
}

func TestGetRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{Name: "Platform"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.outside.ID, view.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider get err = %v, want forbidden", err)
	}
	if _, err := f.svc.Get(ctx, f.owner.ID, view.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
}

func TestUpdateAndDeleteAreOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{Name: "Platform"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.AddMember(ctx, f.owner.ID, view.ID, AddMemberInput{UserID: f.member.ID, Role: "admin"}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	name := "Renamed"
	if _, err := f.svc.Update(ctx, f.member.ID, view.ID, UpdateInput{Name: &name}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member update err = %v, want forbidden", err)
	}
	updated, err := f.svc.Update(ctx, f.owner.ID, view.ID, UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("name = %q", updated.Name)
	}

	if err := f.svc.Delete(ctx, f.member.ID, view.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member delete err = %v, want forbidden", err)
	}
	if err := f.svc.Delete(ctx, f.owner.ID, view.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.owner.ID, view.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get after delete = %v, want not found", err)
	}
}

func TestDeleteDetachesProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.owner.ID, CreateInput{Name: "Platform"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	project := domain.Project{
		ID:       uuid.NewString(),
		Name:     "Attached",
		OwnerID:  f.owner.ID,
		TeamID:   &view.ID,
		Status:   domain.ProjectActive,
		Priority: domain.PriorityMedium,
	}
	if err := f.store.CreateProject(ctx, &project); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	if err := f.svc.Delete(ctx, f.owner.ID, view.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	detached, err := f.store.GetProjectByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if detached.TeamID != nil {
		t.Fatalf("project still references deleted team %q", *detached.TeamID)
	}
}
