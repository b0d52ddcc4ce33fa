package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"oko-node/internal/apperr"
	"oko-node/internal/storage/models"
)

// WalletStore persists wallet rows.
type WalletStore struct {
	db *gorm.DB
}

func NewWalletStore(db *gorm.DB) *WalletStore {
	return &WalletStore{db: db}
}

// Create inserts a new wallet. A duplicate (user, curve) pair or public
// key is a replay of keygen and is rejected.
func (s *WalletStore) Create(ctx context.Context, w *models.Wallet) error {
	if w.WalletID == uuid.Nil {
		w.WalletID = uuid.New()
	}
	w.Status = models.WalletActive
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Wrap(err, apperr.CodeReplay, "wallet already exists for this identity and curve")
		}
		return err
	}
	return nil
}

// GetByID fetches a wallet by primary key.
func (s *WalletStore) GetByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.WithContext(ctx).First(&w, "wallet_id = ?", walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "wallet %s not found", walletID)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByUserAndCurve fetches the single wallet a user holds per curve.
func (s *WalletStore) GetByUserAndCurve(ctx context.Context, userID string, curve models.CurveType) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.WithContext(ctx).First(&w, "user_id = ? AND curve_type = ?", userID, curve).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "no %s wallet for user", curve)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListByUser returns all wallets owned by an identity.
func (s *WalletStore) ListByUser(ctx context.Context, userID string) ([]models.Wallet, error) {
	var ws []models.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("curve_type").Find(&ws).Error
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// UpdateShare replaces the encrypted share ciphertext. This is the only
// mutation a wallet row supports after creation (reshare re-encryption).
func (s *WalletStore) UpdateShare(ctx context.Context, walletID uuid.UUID, encShare []byte) error {
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("wallet_id = ? AND status = ?", walletID, models.WalletActive).
		Updates(map[string]interface{}{
			"enc_tss_share": encShare,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "wallet %s not found or not active", walletID)
	}
	return nil
}
