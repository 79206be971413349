package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository/memory"
	"github.com/taskflow/taskflow/pkg/config"
)

func newService() Service {
	return New(memory.NewStore(), slog.New(slog.NewTextHandler(io.Discard, nil)), config.APIConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
}

func TestSignupAndLogin(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	user, tokens, err := svc.Signup(ctx, "Ada", "ADA@Example.com", "hunter42")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("tokens not issued")
	}

	if _, _, err := svc.Signup(ctx, "Imposter", "ada@example.com", "hunter42"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate signup err = %v, want conflict", err)
	}

	logged, _, err := svc.Login(ctx, "ada@example.com", "hunter42")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != user.ID {
		t.Fatalf("login resolved user %q, want %q", logged.ID, user.ID)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, _, err := svc.Signup(ctx, "Ada", "ada@example.com", "hunter42"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, _, err := svc.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("wrong password err = %v, want unauthenticated", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "hunter42"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("unknown email err = %v, want unauthenticated", err)
	}
}

func TestSignupValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	cases := []struct {
		name, userName, email, password string
	}{
		{"missing name", "", "a@b.c", "hunter42"},
		{"bad email", "Ada", "not-an-email", "hunter42"},
		{"short password", "Ada", "a@b.c", "pw"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.Signup(ctx, tc.userName, tc.email, tc.password); !domain.IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestAuthenticateToken(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	user, tokens, err := svc.Signup(ctx, "Ada", "ada@example.com", "hunter42")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	resolved, err := svc.AuthenticateToken(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("resolved %q, want %q", resolved.ID, user.ID)
	}

	for _, token := range []string{"", "  ", "not.a.jwt"} {
		if _, err := svc.AuthenticateToken(ctx, token); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("token %q err = %v, want unauthenticated", token, err)
		}
	}
}
