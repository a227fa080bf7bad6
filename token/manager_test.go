package token_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-bank-dashboard/auth"
	"github.com/jrsteele09/go-bank-dashboard/internal/config"
	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/jrsteele09/go-bank-dashboard/token"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testSessionID = "session-1"

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeRefresher counts provider calls and answers with a scripted response
type fakeRefresher struct {
	calls   atomic.Int32
	delay   time.Duration
	respond func(refreshToken string, call int32) (*oauth2.Token, error)
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	call := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.respond(refreshToken, call)
}

func rotatingResponse(_ string, call int32) (*oauth2.Token, error) {
	return (&oauth2.Token{
		AccessToken:  "access-" + string(rune('1'+call)),
		RefreshToken: "refresh-" + string(rune('1'+call)),
		TokenType:    "Bearer",
	}).WithExtra(map[string]any{"expires_in": float64(3600)}), nil
}

func setupManager(t *testing.T, refresher token.Refresher, bound *sessions.Token) (*token.Manager, *sessions.InMemoryRepo) {
	t.Helper()

	token.NowTimeFunc = func() time.Time { return testNow }
	t.Cleanup(func() { token.NowTimeFunc = time.Now })

	repo := sessions.NewInMemoryRepo()
	store := sessions.NewStore(repo)
	if bound != nil {
		_, err := store.Update(context.Background(), testSessionID, func(s *sessions.Session) error {
			s.Bind(*bound)
			return nil
		})
		require.NoError(t, err)
	}
	return token.NewManager(store, refresher, time.Minute), repo
}

func storedToken(t *testing.T, repo *sessions.InMemoryRepo) *sessions.Token {
	t.Helper()
	s, err := repo.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	return s.Token
}

func TestGetValidToken_NotAuthenticated(t *testing.T) {
	refresher := &fakeRefresher{respond: rotatingResponse}
	m, _ := setupManager(t, refresher, nil)

	_, err := m.GetValidToken(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.Zero(t, refresher.calls.Load())
}

func TestGetValidToken_FreshTokenUnchanged(t *testing.T) {
	refresher := &fakeRefresher{respond: rotatingResponse}
	bound := sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(10 * time.Minute)}
	m, _ := setupManager(t, refresher, &bound)

	tok, err := m.GetValidToken(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)
	require.Zero(t, refresher.calls.Load())
}

func TestGetValidToken_TokenWithoutExpiry(t *testing.T) {
	refresher := &fakeRefresher{respond: rotatingResponse}
	bound := sessions.Token{AccessToken: "access-1"}
	m, _ := setupManager(t, refresher, &bound)

	tok, err := m.GetValidToken(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)
	require.Zero(t, refresher.calls.Load())
}

func TestGetValidToken_RefreshWithinMargin(t *testing.T) {
	refresher := &fakeRefresher{respond: rotatingResponse}
	bound := sessions.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Scopes:       []string{"accounts:read"},
		Expiry:       testNow.Add(30 * time.Second),
	}
	m, repo := setupManager(t, refresher, &bound)

	tok, err := m.GetValidToken(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
	require.Equal(t, "refresh-2", tok.RefreshToken)
	require.Equal(t, testNow.Add(time.Hour), tok.Expiry)
	require.Equal(t, []string{"accounts:read"}, tok.Scopes)
	require.Equal(t, int32(1), refresher.calls.Load())

	stored := storedToken(t, repo)
	require.Equal(t, "access-2", stored.AccessToken)
	require.Equal(t, testNow, stored.RefreshedAt)
}

func TestGetValidToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	refresher := &fakeRefresher{respond: func(string, int32) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "access-2", Expiry: testNow.Add(time.Hour)}, nil
	}}
	bound := sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(-time.Second)}
	m, _ := setupManager(t, refresher, &bound)

	tok, err := m.GetValidToken(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, "refresh-1", tok.RefreshToken)
}

func TestGetValidToken_InvalidGrantExpiresSession(t *testing.T) {
	refresher := &fakeRefresher{respond: func(string, int32) (*oauth2.Token, error) {
		return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant"}
	}}
	bound := sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(-time.Minute)}
	m, repo := setupManager(t, refresher, &bound)

	_, err := m.GetValidToken(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Nil(t, storedToken(t, repo), "token is cleared")

	// Later calls keep reporting the expiry without asking the provider again
	_, err = m.GetValidToken(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Equal(t, int32(1), refresher.calls.Load())
}

func TestGetValidToken_NoRefreshToken(t *testing.T) {
	refresher := &fakeRefresher{respond: rotatingResponse}
	bound := sessions.Token{AccessToken: "access-1", Expiry: testNow.Add(-time.Minute)}
	m, repo := setupManager(t, refresher, &bound)

	_, err := m.GetValidToken(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Nil(t, storedToken(t, repo))
	require.Zero(t, refresher.calls.Load())
}

func TestGetValidToken_TransientFailureLeavesToken(t *testing.T) {
	refresher := &fakeRefresher{respond: func(string, int32) (*oauth2.Token, error) {
		return nil, errors.New("connection reset by peer")
	}}
	bound := sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(-time.Minute)}
	m, repo := setupManager(t, refresher, &bound)

	_, err := m.GetValidToken(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrRefreshUnavailable)
	require.False(t, apperrors.IsReloginRequired(err))

	stored := storedToken(t, repo)
	require.NotNil(t, stored)
	require.Equal(t, "refresh-1", stored.RefreshToken)
}

func TestGetValidToken_ConcurrentCallersRefreshOnce(t *testing.T) {
	refresher := &fakeRefresher{respond: rotatingResponse, delay: 20 * time.Millisecond}
	bound := sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(-time.Minute)}
	m, _ := setupManager(t, refresher, &bound)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]sessions.Token, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = m.GetValidToken(context.Background(), testSessionID)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), refresher.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		require.Equal(t, "access-2", results[i].AccessToken)
	}
}

func TestForceRefresh(t *testing.T) {
	refresher := &fakeRefresher{respond: rotatingResponse}
	bound := sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(time.Hour)}
	m, _ := setupManager(t, refresher, &bound)

	// The API rejected a token that still looks valid locally
	tok, err := m.ForceRefresh(context.Background(), testSessionID, bound)
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)

	// A second request rejected with the same old token gets the newer token without another refresh
	tok, err = m.ForceRefresh(context.Background(), testSessionID, bound)
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
	require.Equal(t, int32(1), refresher.calls.Load())
}

func TestGetValidToken_ContextCancelledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	refresher := &fakeRefresher{respond: func(rt string, call int32) (*oauth2.Token, error) {
		<-release
		return rotatingResponse(rt, call)
	}}
	bound := sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(-time.Minute)}
	m, _ := setupManager(t, refresher, &bound)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.GetValidToken(context.Background(), testSessionID)
	}()
	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.GetValidToken(ctx, testSessionID)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

// Drives the refresh through the real OAuth2 client so provider error bodies are classified
// cancellableRepo fails writes made under a cancelled context, as a network store would
type cancellableRepo struct {
	*sessions.InMemoryRepo
}

func (r cancellableRepo) Upsert(ctx context.Context, session *sessions.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.InMemoryRepo.Upsert(ctx, session)
}

func TestGetValidToken_RotationSurvivesCancelledRequest(t *testing.T) {
	token.NowTimeFunc = func() time.Time { return testNow }
	t.Cleanup(func() { token.NowTimeFunc = time.Now })

	repo := cancellableRepo{sessions.NewInMemoryRepo()}
	store := sessions.NewStore(repo)
	_, err := store.Update(context.Background(), testSessionID, func(s *sessions.Session) error {
		s.Bind(sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow})
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher := &fakeRefresher{respond: func(refreshToken string, call int32) (*oauth2.Token, error) {
		// The browser goes away after the provider has rotated the refresh token
		defer cancel()
		return rotatingResponse(refreshToken, call)
	}}
	m := token.NewManager(store, refresher, time.Minute)

	tok, err := m.GetValidToken(ctx, testSessionID)
	require.NoError(t, err)
	require.Equal(t, "refresh-2", tok.RefreshToken)

	s, err := repo.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, "refresh-2", s.Token.RefreshToken)

	tok, err = m.GetValidToken(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
	require.Equal(t, int32(1), refresher.calls.Load())
}

func TestGetValidToken_ProviderRejectsRefreshToken(t *testing.T) {
	var calls atomic.Int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"token_type":   "Bearer",
			"expires_in":   21600,
		})
	}))
	defer tokenServer.Close()

	t.Setenv("CLIENT_ID", "client-1")
	t.Setenv("CLIENT_SECRET", "secret-1")
	t.Setenv("TOKEN_URL", tokenServer.URL)
	provider, err := auth.NewProvider(context.Background(), config.OAuth{}, tokenServer.Client())
	require.NoError(t, err)

	good := sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: testNow.Add(-time.Minute)}
	m, _ := setupManager(t, provider, &good)
	tok, err := m.GetValidToken(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
	require.Equal(t, testNow.Add(6*time.Hour), tok.Expiry)
	require.Equal(t, "refresh-1", tok.RefreshToken)

	revoked := sessions.Token{AccessToken: "access-1", RefreshToken: "revoked", Expiry: testNow.Add(-time.Minute)}
	m, _ = setupManager(t, provider, &revoked)
	_, err = m.GetValidToken(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Equal(t, int32(2), calls.Load())
}
