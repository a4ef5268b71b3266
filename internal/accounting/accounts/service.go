package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service maintains the chart of accounts. Balances change only through
// ApplyDeltaTx, which the journal engine calls inside its posting transaction.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// LookupByCode resolves an account code for the tenant.
func (s *Service) LookupByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	var acc Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		acc, err = s.LookupByCodeTx(ctx, tx, tenantID, code)
		return err
	})
	return acc, err
}

// LookupByCodeTx resolves an account code on an open transaction.
func (s *Service) LookupByCodeTx(ctx context.Context, tx TxRepository, tenantID int64, code string) (Account, error) {
	return tx.GetAccountByCode(ctx, tenantID, strings.TrimSpace(code))
}

// ApplyDeltaTx adds a pre-signed delta to the account balance.
func (s *Service) ApplyDeltaTx(ctx context.Context, tx TxRepository, tenantID, accountID int64, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	return tx.ApplyDelta(ctx, tenantID, accountID, delta)
}

// List returns the tenant chart ordered by code.
func (s *Service) List(ctx context.Context, tenantID int64) ([]Account, error) {
	var out []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListAccounts(ctx, tenantID)
		return err
	})
	return out, err
}

// Tree groups child accounts under their top-level parents.
func (s *Service) Tree(ctx context.Context, tenantID int64) ([]Node, error) {
	list, err := s.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return buildTree(list), nil
}

func buildTree(list []Account) []Node {
	index := make(map[int64]int)
	var nodes []Node
	for _, acc := range list {
		if acc.ParentID == nil {
			index[acc.ID] = len(nodes)
			nodes = append(nodes, Node{Account: acc})
		}
	}
	for _, acc := range list {
		if acc.ParentID == nil {
			continue
		}
		if i, ok := index[*acc.ParentID]; ok {
			nodes[i].Children = append(nodes[i].Children, acc)
		}
	}
	return nodes
}

// Create adds an account. The category follows the code range and the normal
// balance defaults from the category.
func (s *Service) Create(ctx context.Context, tenantID int64, in CreateInput) (Account, error) {
	var acc Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		acc, err = s.createTx(ctx, tx, tenantID, in)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account created", slog.Int64("tenant_id", tenantID), slog.String("code", acc.Code))
	return acc, nil
}

func (s *Service) createTx(ctx context.Context, tx TxRepository, tenantID int64, in CreateInput) (Account, error) {
	code := strings.TrimSpace(in.Code)
	typ, err := TypeForCode(code)
	if err != nil {
		return Account{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Account{}, shared.ErrNameRequired
	}
	normal := in.NormalBalance
	if normal == "" {
		normal = DefaultNormalBalance(typ)
	}
	if !normal.Valid() {
		return Account{}, fmt.Errorf("%w: %q", shared.ErrInvalidNormalBalance, normal)
	}
	if in.ParentID != nil {
		parent, err := tx.GetAccount(ctx, tenantID, *in.ParentID)
		if err != nil {
			return Account{}, fmt.Errorf("%w: %v", shared.ErrInvalidParent, err)
		}
		if parent.ParentID != nil {
			return Account{}, fmt.Errorf("%w: %s is not a top-level account", shared.ErrInvalidParent, parent.Code)
		}
	}
	return tx.InsertAccount(ctx, Account{
		TenantID:      tenantID,
		Code:          code,
		Name:          name,
		Type:          typ,
		NormalBalance: normal,
		ParentID:      in.ParentID,
		IsActive:      true,
		IsSystem:      in.IsSystem,
	})
}

// Update edits an account. System accounts keep their code and name.
func (s *Service) Update(ctx context.Context, tenantID, id int64, in UpdateInput) (Account, error) {
	var acc Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if in.Code != nil {
			if code := strings.TrimSpace(*in.Code); code != current.Code {
				if current.IsSystem {
					return shared.ErrSystemAccount
				}
				typ, err := TypeForCode(code)
				if err != nil {
					return err
				}
				current.Code = code
				current.Type = typ
			}
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return shared.ErrNameRequired
			}
			if name != current.Name {
				if current.IsSystem {
					return shared.ErrSystemAccount
				}
				current.Name = name
			}
		}
		if in.IsActive != nil {
			current.IsActive = *in.IsActive
		}
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		acc = current
		return nil
	})
	return acc, err
}

// SeedDefaults creates the well-known system accounts that do not exist yet.
func (s *Service) SeedDefaults(ctx context.Context, tenantID int64) ([]Account, error) {
	var created []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ListAccounts(ctx, tenantID)
		if err != nil {
			return err
		}
		byCode := make(map[string]Account, len(existing))
		for _, acc := range existing {
			byCode[acc.Code] = acc
		}
		for _, seed := range DefaultChart {
			if _, ok := byCode[seed.Code]; ok {
				continue
			}
			seed.IsSystem = true
			if parentCode, ok := defaultParents[seed.Code]; ok {
				if parent, ok := byCode[parentCode]; ok {
					id := parent.ID
					seed.ParentID = &id
				}
			}
			acc, err := s.createTx(ctx, tx, tenantID, seed)
			if err != nil {
				return err
			}
			byCode[acc.Code] = acc
			created = append(created, acc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("chart of accounts seeded", slog.Int64("tenant_id", tenantID), slog.Int("created", len(created)))
	return created, nil
}
