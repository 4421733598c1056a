package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"salonpos/backend/internal/domain"
)

// QuoteCache stores priced quotes. Checkout never reads from it.
type QuoteCache interface {
	Get(ctx context.Context, key string) (*domain.QuoteResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.QuoteResponse, ttl time.Duration) error
}

type NoopQuoteCache struct{}

func (NoopQuoteCache) Get(_ context.Context, _ string) (*domain.QuoteResponse, bool, error) {
	return nil, false, nil
}

func (NoopQuoteCache) Set(_ context.Context, _ string, _ *domain.QuoteResponse, _ time.Duration) error {
	return nil
}

// QuoteKey derives a cache key from every input that affects a quote.
func QuoteKey(parts any) (string, error) {
	payload, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return "quote:" + hex.EncodeToString(sum[:]), nil
}
