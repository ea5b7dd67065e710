package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	expiration = 5 * time.Minute
)

var (
	ErrBalanceNotFound = errors.New("balance not found in cache")
)

// WalletRepository caches balance snapshots keyed by wallet id. The cache
// is read-through: every balance write in Postgres either refreshes or
// invalidates the key, so a hit is at most one write behind.
type WalletRepository struct {
	client *redis.Client
	prefix string
}

func NewWalletRepository(client *redis.Client) *WalletRepository {
	return &WalletRepository{
		client: client,
		prefix: "wallet:",
	}
}

// BalanceSnapshot is the cached view of a wallet's two balances.
type BalanceSnapshot struct {
	Balance       models.Money `json:"balance"`
	FrozenBalance models.Money `json:"frozenBalance"`
}

func (r *WalletRepository) SetBalance(ctx context.Context, walletID string, snapshot BalanceSnapshot) error {
	key := r.getBalanceKey(walletID)

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal balance snapshot: %w", err)
	}

	if err := r.client.Set(ctx, key, payload, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set balance in redis: %w", err)
	}
	return nil
}

func (r *WalletRepository) GetBalance(ctx context.Context, walletID string) (*BalanceSnapshot, error) {
	key := r.getBalanceKey(walletID)

	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to get balance from redis: %w", err)
	}

	var snapshot BalanceSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse balance from redis: %w", err)
	}
	return &snapshot, nil
}

func (r *WalletRepository) DeleteBalance(ctx context.Context, walletID string) error {
	key := r.getBalanceKey(walletID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete balance from redis: %w", err)
	}
	return nil
}

func (r *WalletRepository) getBalanceKey(walletID string) string {
	return r.prefix + walletID + ":balance"
}
