package handler_test

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/auth"
	"github.com/sakif/secret-santa/internal/model"
	"github.com/sakif/secret-santa/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockExchange implements handler.Revealer and handler.Exchange.
type mockExchange struct {
	summary  *model.RoundSummary
	status   model.RoundStatus
	err      error
	reset    int
	clearAll int

	gotName, gotCode string
	revealResult     *model.RevealResult
}

func (m *mockExchange) Reveal(_ context.Context, name, code string) (*model.RevealResult, error) {
	m.gotName, m.gotCode = name, code
	if m.err != nil {
		return nil, m.err
	}
	return m.revealResult, nil
}

func (m *mockExchange) Generate(context.Context) (*model.RoundSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

func (m *mockExchange) Status() model.RoundStatus { return m.status }

func (m *mockExchange) Summary() (*model.RoundSummary, error) {
	if m.summary == nil {
		return nil, apperror.NotFound("round", "current")
	}
	return m.summary, nil
}

func (m *mockExchange) Pair(giver string) (*model.Pair, error) {
	s, err := m.Summary()
	if err != nil {
		return nil, err
	}
	for _, p := range s.Pairs {
		if p.Giver == giver {
			return &p, nil
		}
	}
	return nil, apperror.NameNotFound(giver)
}

func (m *mockExchange) Reset(context.Context) error {
	m.reset++
	return m.err
}

func (m *mockExchange) ClearAll(context.Context) error {
	m.clearAll++
	return m.err
}

// mockRoster implements handler.Roster.
type mockRoster struct {
	items     []model.Participant
	err       error
	imported  string
	lastInput participantInput
}

type participantInput struct{ id, name, wishlist, address string }

func (m *mockRoster) Add(_ context.Context, name, wishlist, address string) (*model.Participant, error) {
	m.lastInput = participantInput{"", name, wishlist, address}
	if m.err != nil {
		return nil, m.err
	}
	p := model.Participant{ID: "p1", Name: name, Wishlist: wishlist, Address: address}
	m.items = append(m.items, p)
	return &p, nil
}

func (m *mockRoster) Get(_ context.Context, id string) (*model.Participant, error) {
	for _, p := range m.items {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("participant", id)
}

func (m *mockRoster) List(context.Context) ([]model.Participant, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

func (m *mockRoster) Update(_ context.Context, id, name, wishlist, address string) (*model.Participant, error) {
	m.lastInput = participantInput{id, name, wishlist, address}
	if m.err != nil {
		return nil, m.err
	}
	return &model.Participant{ID: id, Name: name, Wishlist: wishlist, Address: address}, nil
}

func (m *mockRoster) Delete(_ context.Context, id string) error {
	m.lastInput = participantInput{id: id}
	return m.err
}

func (m *mockRoster) ImportCSV(_ context.Context, r io.Reader) (*service.ImportResult, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.imported = string(b)
	if m.err != nil {
		return nil, m.err
	}
	return &service.ImportResult{Rows: 2, Imported: 2, Skipped: []string{}}, nil
}

// mockAuth implements handler.Authenticator.
type mockAuth struct {
	loginErr  error
	changeErr error
	githubErr error
	gotUser   *auth.GitHubUser
	gotChange [2]string
}

func (m *mockAuth) PasswordLogin(_ context.Context, password string) (*service.AuthResult, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	if password != "north-pole" {
		return nil, apperror.Unauthorized("wrong password")
	}
	return &service.AuthResult{AdminID: auth.PasswordAdminID, Token: "jwt-password"}, nil
}

func (m *mockAuth) ChangePassword(_ context.Context, current, next string) error {
	m.gotChange = [2]string{current, next}
	return m.changeErr
}

func (m *mockAuth) LoginOrRegisterGitHub(_ context.Context, u *auth.GitHubUser) (*service.AuthResult, error) {
	m.gotUser = u
	if m.githubErr != nil {
		return nil, m.githubErr
	}
	return &service.AuthResult{AdminID: "u1", Token: "jwt-github", User: &model.User{ID: "u1", Login: u.Login}}, nil
}

func (m *mockAuth) Me(_ context.Context, adminID string) (*service.Admin, error) {
	if adminID == "" {
		return nil, apperror.Unauthorized("not signed in")
	}
	return &service.Admin{ID: adminID, Method: "password"}, nil
}
