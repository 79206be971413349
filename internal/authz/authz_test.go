package authz

import (
	"testing"

	"github.com/taskflow/taskflow/internal/domain"
)

func TestProjectRules(t *testing.T) {
	project := &domain.Project{
		ID:        "proj-1",
		OwnerID:   "owner",
		MemberIDs: []string{"member-a", "member-b"},
	}

	cases := []struct {
		name  string
		actor string
		fn    func(string, *domain.Project) bool
		allow bool
	}{
		{name: "owner access", actor: "owner", fn: CanAccessProject, allow: true},
		{name: "member access", actor: "member-a", fn: CanAccessProject, allow: true},
		{name: "stranger access", actor: "stranger", fn: CanAccessProject, allow: false},
		{name: "owner mutate", actor: "owner", fn: CanMutateProject, allow: true},
		{name: "member mutate", actor: "member-b", fn: CanMutateProject, allow: true},
		{name: "stranger mutate", actor: "stranger", fn: CanMutateProject, allow: false},
		{name: "owner administer", actor: "owner", fn: CanAdministerProject, allow: true},
		{name: "member administer", actor: "member-a", fn: CanAdministerProject, allow: false},
		{name: "stranger administer", actor: "stranger", fn: CanAdministerProject, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.actor, project); got != tc.allow {
				t.Fatalf("%s: got %v, want %v", tc.name, got, tc.allow)
			}
		})
	}
}

func TestTaskRulesDelegateToParentProject(t *testing.T) {
	parent := &domain.Project{ID: "proj-1", OwnerID: "owner", MemberIDs: []string{"member"}}

	for _, actor := range []string{"owner", "member", "stranger"} {
		if got, want := CanAccessTask(actor, parent), CanAccessProject(actor, parent); got != want {
			t.Fatalf("CanAccessTask(%q) = %v, want project rule %v", actor, got, want)
		}
		if got, want := CanMutateTask(actor, parent), CanMutateProject(actor, parent); got != want {
			t.Fatalf("CanMutateTask(%q) = %v, want project rule %v", actor, got, want)
		}
	}
}

func TestTeamRules(t *testing.T) {
	team := &domain.Team{
		ID:      "team-1",
		OwnerID: "owner",
		Members: []domain.TeamMember{
			{TeamID: "team-1", UserID: "owner", Role: domain.TeamRoleAdmin},
			{TeamID: "team-1", UserID: "admin", Role: domain.TeamRoleAdmin},
			{TeamID: "team-1", UserID: "plain", Role: domain.TeamRoleMember},
		},
	}

	cases := []struct {
		name  string
		actor string
		fn    func(string, *domain.Team) bool
		allow bool
	}{
		{name: "owner reads", actor: "owner", fn: CanAccessTeam, allow: true},
		{name: "plain member reads", actor: "plain", fn: CanAccessTeam, allow: true},
		{name: "stranger reads", actor: "stranger", fn: CanAccessTeam, allow: false},
		{name: "owner adds members", actor: "owner", fn: CanManageTeamMembers, allow: true},
		{name: "admin adds members", actor: "admin", fn: CanManageTeamMembers, allow: true},
		{name: "plain member adds members", actor: "plain", fn: CanManageTeamMembers, allow: false},
		{name: "stranger adds members", actor: "stranger", fn: CanManageTeamMembers, allow: false},
		{name: "owner administers", actor: "owner", fn: CanAdministerTeam, allow: true},
		{name: "admin administers", actor: "admin", fn: CanAdministerTeam, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.actor, team); got != tc.allow {
				t.Fatalf("%s: got %v, want %v", tc.name, got, tc.allow)
			}
		})
	}
}
