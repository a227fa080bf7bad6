package dashboard

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jrsteele09/go-bank-dashboard/bankapi"
	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// TokenSource hands out access tokens for a session
type TokenSource interface {
	GetValidToken(ctx context.Context, sessionID string) (sessions.Token, error)
	ForceRefresh(ctx context.Context, sessionID string, rejected sessions.Token) (sessions.Token, error)
}

// BankAPI is the part of the banking API the dashboard reads
type BankAPI interface {
	ListAccounts(ctx context.Context, tok sessions.Token) ([]bankapi.Account, error)
	GetBalance(ctx context.Context, tok sessions.Token, accountID string) (bankapi.Balance, error)
	ListTransactions(ctx context.Context, tok sessions.Token, accountID string, since *time.Time) iter.Seq2[bankapi.Transaction, error]
}

type AccountView struct {
	Account bankapi.Account
	View    View
}

// Dashboard holds one view per open account. The first is the default account.
type Dashboard struct {
	Accounts    []AccountView
	GeneratedAt time.Time
}

type Service struct {
	tokens TokenSource
	api    BankAPI
}

func NewService(tokens TokenSource, api BankAPI) *Service {
	return &Service{
		tokens: tokens,
		api:    api,
	}
}

// Dashboard fetches everything for the session's open accounts and builds their views.
// When the API rejects the token it is refreshed once and the whole fetch repeated once.
// Nothing partial is ever returned.
func (s *Service) Dashboard(ctx context.Context, sessionID string) (*Dashboard, error) {
	tok, err := s.tokens.GetValidToken(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	d, err := s.fetch(ctx, tok)
	if !errors.Is(err, apperrors.ErrUnauthorized) {
		return d, err
	}

	log.Info().Object("token", tok).Msg("Access token rejected by API, refreshing")
	tok, err = s.tokens.ForceRefresh(ctx, sessionID, tok)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, tok)
}

func (s *Service) fetch(ctx context.Context, tok sessions.Token) (*Dashboard, error) {
	accounts, err := s.api.ListAccounts(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("[dashboard] list accounts: %w", err)
	}

	open := make([]bankapi.Account, 0, len(accounts))
	for _, acc := range accounts {
		if !acc.Closed {
			open = append(open, acc)
		}
	}

	views := make([]AccountView, len(open))
	g, gctx := errgroup.WithContext(ctx)
	for i, acc := range open {
		g.Go(func() error {
			balance, err := s.api.GetBalance(gctx, tok, acc.ID)
			if err != nil {
				return fmt.Errorf("[dashboard] balance %s: %w", acc.ID, err)
			}
			txs, err := bankapi.CollectTransactions(s.api.ListTransactions(gctx, tok, acc.ID, nil))
			if err != nil {
				return fmt.Errorf("[dashboard] transactions %s: %w", acc.ID, err)
			}
			views[i] = AccountView{Account: acc, View: BuildView(balance, txs)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Dashboard{Accounts: views, GeneratedAt: NowTimeFunc()}, nil
}
