package dashboard_test

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-bank-dashboard/bankapi"
	"github.com/jrsteele09/go-bank-dashboard/dashboard"
	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/jrsteele09/go-bank-dashboard/token"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testSessionID = "session-1"

// fakeAPI accepts only the access tokens in valid
type fakeAPI struct {
	mu       sync.Mutex
	valid    map[string]bool
	accounts []bankapi.Account
	balances map[string]bankapi.Balance
	txs      map[string][]bankapi.Transaction
	failWith map[string]error // account id -> error from GetBalance
	seen     []string
}

func newFakeAPI(validTokens ...string) *fakeAPI {
	f := &fakeAPI{
		valid: map[string]bool{},
		accounts: []bankapi.Account{
			{ID: "acc_closed", Closed: true},
			{ID: "acc_1", Description: "current"},
			{ID: "acc_2", Description: "joint"},
		},
		balances: map[string]bankapi.Balance{
			"acc_1": {Balance: 1000, Currency: "GBP"},
			"acc_2": {Balance: 50, Currency: "GBP"},
		},
		txs: map[string][]bankapi.Transaction{
			"acc_1": {merchantTx("tx_1", day, -250, "Cafe", "eating_out")},
			"acc_2": {},
		},
		failWith: map[string]error{},
	}
	for _, tok := range validTokens {
		f.valid[tok] = true
	}
	return f
}

func (f *fakeAPI) setValid(tokens ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = map[string]bool{}
	for _, tok := range tokens {
		f.valid[tok] = true
	}
}

func (f *fakeAPI) check(tok sessions.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, tok.AccessToken)
	if !f.valid[tok.AccessToken] {
		return &bankapi.Error{Kind: apperrors.ErrUnauthorized, StatusCode: 401}
	}
	return nil
}

func (f *fakeAPI) ListAccounts(_ context.Context, tok sessions.Token) ([]bankapi.Account, error) {
	if err := f.check(tok); err != nil {
		return nil, err
	}
	return f.accounts, nil
}

func (f *fakeAPI) GetBalance(_ context.Context, tok sessions.Token, accountID string) (bankapi.Balance, error) {
	if err := f.check(tok); err != nil {
		return bankapi.Balance{}, err
	}
	if err := f.failWith[accountID]; err != nil {
		return bankapi.Balance{}, err
	}
	return f.balances[accountID], nil
}

func (f *fakeAPI) ListTransactions(_ context.Context, tok sessions.Token, accountID string, _ *time.Time) iter.Seq2[bankapi.Transaction, error] {
	return func(yield func(bankapi.Transaction, error) bool) {
		if err := f.check(tok); err != nil {
			yield(bankapi.Transaction{}, err)
			return
		}
		for _, tx := range f.txs[accountID] {
			if !yield(tx, nil) {
				return
			}
		}
	}
}

// fakeTokens hands out current and swaps to next on ForceRefresh
type fakeTokens struct {
	current    sessions.Token
	next       sessions.Token
	err        error
	forceCalls atomic.Int32
}

func (f *fakeTokens) GetValidToken(context.Context, string) (sessions.Token, error) {
	return f.current, f.err
}

func (f *fakeTokens) ForceRefresh(_ context.Context, _ string, rejected sessions.Token) (sessions.Token, error) {
	f.forceCalls.Add(1)
	if rejected.AccessToken != f.current.AccessToken {
		return f.current, nil
	}
	f.current = f.next
	return f.current, nil
}

func TestDashboard(t *testing.T) {
	api := newFakeAPI("access-1")
	tokens := &fakeTokens{current: sessions.Token{AccessToken: "access-1"}}
	svc := dashboard.NewService(tokens, api)

	d, err := svc.Dashboard(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Len(t, d.Accounts, 2, "closed accounts are skipped")
	require.Equal(t, "acc_1", d.Accounts[0].Account.ID)
	require.Equal(t, "acc_2", d.Accounts[1].Account.ID)
	require.Equal(t, int64(1250), d.Accounts[0].View.Opening)
	require.Empty(t, d.Accounts[1].View.Rows)
	require.Zero(t, tokens.forceCalls.Load())
}

func TestDashboard_RefreshesOnceOnUnauthorized(t *testing.T) {
	api := newFakeAPI("access-2")
	tokens := &fakeTokens{
		current: sessions.Token{AccessToken: "access-1"},
		next:    sessions.Token{AccessToken: "access-2"},
	}
	svc := dashboard.NewService(tokens, api)

	d, err := svc.Dashboard(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Len(t, d.Accounts, 2)
	require.Equal(t, int32(1), tokens.forceCalls.Load())
}

func TestDashboard_SecondUnauthorizedIsReturned(t *testing.T) {
	api := newFakeAPI()
	tokens := &fakeTokens{
		current: sessions.Token{AccessToken: "access-1"},
		next:    sessions.Token{AccessToken: "access-2"},
	}
	svc := dashboard.NewService(tokens, api)

	d, err := svc.Dashboard(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Nil(t, d)
	require.Equal(t, int32(1), tokens.forceCalls.Load())
}

func TestDashboard_NoPartialResults(t *testing.T) {
	api := newFakeAPI("access-1")
	api.failWith["acc_2"] = &bankapi.Error{Kind: apperrors.ErrServerError, StatusCode: 503}
	svc := dashboard.NewService(&fakeTokens{current: sessions.Token{AccessToken: "access-1"}}, api)

	d, err := svc.Dashboard(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrServerError)
	require.Nil(t, d)
}

func TestDashboard_NotAuthenticated(t *testing.T) {
	api := newFakeAPI()
	svc := dashboard.NewService(&fakeTokens{err: apperrors.ErrNotAuthenticated}, api)

	_, err := svc.Dashboard(context.Background(), testSessionID)
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.Empty(t, api.seen, "no API call without a token")
}

// countingRefresher issues access-2 on the first refresh and access-3 after that
type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) Refresh(context.Context, string) (*oauth2.Token, error) {
	n := r.calls.Add(1)
	time.Sleep(10 * time.Millisecond)
	return &oauth2.Token{
		AccessToken:  "access-" + string(rune('1'+n)),
		RefreshToken: "refresh-2",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func TestDashboard_ConcurrentRequestsOnExpiredToken(t *testing.T) {
	store := sessions.NewStore(sessions.NewInMemoryRepo())
	_, err := store.Update(context.Background(), testSessionID, func(s *sessions.Session) error {
		s.Bind(sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Minute)})
		return nil
	})
	require.NoError(t, err)

	refresher := &countingRefresher{}
	api := newFakeAPI("access-2")
	svc := dashboard.NewService(token.NewManager(store, refresher, time.Minute), api)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Dashboard(context.Background(), testSessionID)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, int32(1), refresher.calls.Load())
}

func TestDashboard_APIRejectsFreshTokenOnce(t *testing.T) {
	store := sessions.NewStore(sessions.NewInMemoryRepo())
	_, err := store.Update(context.Background(), testSessionID, func(s *sessions.Session) error {
		s.Bind(sessions.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now().Add(time.Hour)})
		return nil
	})
	require.NoError(t, err)

	refresher := &countingRefresher{}
	api := newFakeAPI("access-2")
	svc := dashboard.NewService(token.NewManager(store, refresher, time.Minute), api)

	_, err = svc.Dashboard(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, int32(1), refresher.calls.Load())

	api.setValid("access-2")
	_, err = svc.Dashboard(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, int32(1), refresher.calls.Load(), "refreshed token is reused")
}
