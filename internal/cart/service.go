package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/internal/catalog"
	"github.com/angelmondragon/shopledger-backend/internal/inventory"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReader interface {
	GetAvailable(ctx context.Context, key inventory.Key) (int, error)
}

// View is a cart together with its computed totals.
type View struct {
	Cart   *models.Cart `json:"cart"`
	Totals Totals       `json:"totals"`
}

// AddItemInput describes one add-to-cart request.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Service exposes cart operations. Every mutation returns the updated cart
// with totals. Stock checks here are advisory; reservation happens only at
// payment confirmation.
type Service interface {
	GetOrCreate(ctx context.Context, owner Owner) (*View, error)
	Find(ctx context.Context, owner Owner) (*models.Cart, error)
	AddItem(ctx context.Context, owner Owner, input AddItemInput) (*View, error)
	UpdateQuantity(ctx context.Context, owner Owner, lineID uuid.UUID, qty int) (*View, error)
	RemoveItem(ctx context.Context, owner Owner, lineID uuid.UUID) (*View, error)
	Clear(ctx context.Context, owner Owner) (*View, error)
	ClearTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
	Merge(ctx context.Context, sessionKey string, userID uuid.UUID) (*View, error)
	Totals(cart *models.Cart, shipTo *types.Address) Totals
	Validate(ctx context.Context, cart *models.Cart) ([]Violation, error)
}

type service struct {
	repo    CartRepository
	tx      txRunner
	catalog catalog.Reader
	stock   stockReader
	calc    Calculator
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, reader catalog.Reader, stock stockReader, calc Calculator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if reader == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock reader required")
	}
	if calc.Tax == nil || calc.Shipping == nil {
		return nil, fmt.Errorf("tax and shipping calculators required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, catalog: reader, stock: stock, calc: calc, logg: logg}, nil
}

func (s *service) view(cart *models.Cart) *View {
	return &View{Cart: cart, Totals: s.calc.Totals(cart, nil)}
}

func (s *service) Totals(cart *models.Cart, shipTo *types.Address) Totals {
	return s.calc.Totals(cart, shipTo)
}

func (s *service) GetOrCreate(ctx context.Context, owner Owner) (*View, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.getOrCreate(ctx, s.repo, owner)
	if err != nil {
		return nil, err
	}
	return s.view(cart), nil
}

func (s *service) Find(ctx context.Context, owner Owner) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

// getOrCreate returns the owner's cart, creating it on first use. The insert
// skips on conflict, so a concurrent creator's cart is the one read back.
func (s *service) getOrCreate(ctx context.Context, repo CartRepository, owner Owner) (*models.Cart, error) {
	cart, err := repo.FindByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	record := &models.Cart{UserID: owner.UserID}
	if owner.IsGuest() {
		key := owner.SessionKey
		record.SessionKey = &key
	}
	if err := repo.CreateIfAbsent(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	cart, err = repo.FindByOwner(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return cart, nil
}

func (s *service) reload(ctx context.Context, owner Owner) (*View, error) {
	cart, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return s.view(cart), nil
}

func (s *service) checkAvailable(ctx context.Context, key inventory.Key, requested int) error {
	available, err := s.stock.GetAvailable(ctx, key)
	if err != nil {
		return err
	}
	if available < requested {
		details := map[string]any{
			"product_id": key.ProductID.String(),
			"requested":  requested,
			"available":  available,
		}
		if key.VariantID != nil {
			details["variant_id"] = key.VariantID.String()
		}
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(details)
	}
	return nil
}

func (s *service) AddItem(ctx context.Context, owner Owner, input AddItemInput) (*View, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	item, err := catalog.Resolve(ctx, s.catalog, input.ProductID, input.VariantID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, unavailable(item.ProductID, item.VariantID)
	}

	cart, err := s.getOrCreate(ctx, s.repo, owner)
	if err != nil {
		return nil, err
	}
	key := inventory.Key{ProductID: item.ProductID, VariantID: item.VariantID}

	existing, err := s.repo.FindLineByItem(ctx, cart.ID, item.ProductID, item.VariantID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
	}
	current := 0
	if existing != nil {
		current = existing.Quantity
	}
	if err := s.checkAvailable(ctx, key, current+input.Quantity); err != nil {
		return nil, err
	}

	if existing != nil {
		if err := s.repo.UpdateLineQuantity(ctx, existing.ID, current+input.Quantity); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
		}
	} else {
		line := &models.CartLine{
			CartID:         cart.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Quantity:       input.Quantity,
			UnitPriceCents: item.PriceCents,
		}
		if err := s.repo.CreateLine(ctx, line); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart line")
		}
	}
	if err := s.repo.Touch(ctx, cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"cart_id": cart.ID.String(), "product_id": item.ProductID.String(), "qty": input.Quantity})
	s.logg.Info(logCtx, "cart item added")
	return s.reload(ctx, owner)
}

func (s *service) ownedLine(ctx context.Context, owner Owner, lineID uuid.UUID) (*models.Cart, *models.CartLine, error) {
	cart, err := s.Find(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	line, err := s.repo.FindLine(ctx, cart.ID, lineID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
	}
	return cart, line, nil
}

func (s *service) UpdateQuantity(ctx context.Context, owner Owner, lineID uuid.UUID, qty int) (*View, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	cart, line, err := s.ownedLine(ctx, owner, lineID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, inventory.Key{ProductID: line.ProductID, VariantID: line.VariantID}, qty); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLineQuantity(ctx, line.ID, qty); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
	}
	if err := s.repo.Touch(ctx, cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
	}
	return s.reload(ctx, owner)
}

func (s *service) RemoveItem(ctx context.Context, owner Owner, lineID uuid.UUID) (*View, error) {
	cart, line, err := s.ownedLine(ctx, owner, lineID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteLine(ctx, cart.ID, line.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
	}
	return s.reload(ctx, owner)
}

func (s *service) Clear(ctx context.Context, owner Owner) (*View, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.getOrCreate(ctx, s.repo, owner)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteLines(ctx, cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return s.reload(ctx, owner)
}

// ClearTx empties the cart inside the caller's transaction.
func (s *service) ClearTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	if err := s.repo.WithTx(tx).DeleteLines(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// Merge folds the guest cart into the user's cart in one transaction. Lines
// for the same item combine with the quantity capped at what is available;
// other lines move over as they are. The guest cart is deleted.
func (s *service) Merge(ctx context.Context, sessionKey string, userID uuid.UUID) (*View, error) {
	guestOwner := GuestOwner(sessionKey)
	userOwner := UserOwner(userID)
	if err := guestOwner.Validate(); err != nil {
		return nil, err
	}
	if err := userOwner.Validate(); err != nil {
		return nil, err
	}

	guest, err := s.repo.FindByOwner(ctx, guestOwner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.GetOrCreate(ctx, userOwner)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}

	available := make(map[string]int, len(guest.Lines))
	for _, line := range guest.Lines {
		key := inventory.Key{ProductID: line.ProductID, VariantID: line.VariantID}
		qty, err := s.stock.GetAvailable(ctx, key)
		if err != nil {
			return nil, err
		}
		available[key.String()] = qty
	}

	moved, combined := 0, 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		guest, err := repo.FindByOwnerForUpdate(ctx, guestOwner)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock guest cart")
		}
		target, err := s.getOrCreate(ctx, repo, userOwner)
		if err != nil {
			return err
		}
		for _, line := range guest.Lines {
			existing, err := repo.FindLineByItem(ctx, target.ID, line.ProductID, line.VariantID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
			}
			if existing == nil {
				if err := repo.MoveLine(ctx, line.ID, target.ID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move cart line")
				}
				moved++
				continue
			}

			key := inventory.Key{ProductID: line.ProductID, VariantID: line.VariantID}
			qty := existing.Quantity + line.Quantity
			if limit, ok := available[key.String()]; ok && qty > limit {
				qty = limit
			}
			if qty <= 0 {
				err = repo.DeleteLine(ctx, target.ID, existing.ID)
			} else {
				err = repo.UpdateLineQuantity(ctx, existing.ID, qty)
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "combine cart line")
			}
			combined++
		}
		if err := repo.Delete(ctx, guest.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete guest cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{"moved": moved, "combined": combined})
	s.logg.Info(logCtx, "guest cart merged")
	return s.reload(ctx, userOwner)
}
