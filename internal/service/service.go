package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/metrics"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

// ErrForbidden is returned when the actor in the context lacks the role an
// operation requires.
var ErrForbidden = errors.New("forbidden")

var hundred = decimal.NewFromInt(100)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultStoreID string
	QuoteCacheTTL  time.Duration
	Quotes         cache.QuoteCache
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

type Service struct {
	repo           store.Repository
	calculator     *billing.Calculator
	quotes         cache.QuoteCache
	quoteTTL       time.Duration
	metrics        *metrics.Metrics
	logger         *zap.Logger
	validate       *validator.Validate
	defaultStoreID string
	now            func() time.Time
}

func New(repo store.Repository, calculator *billing.Calculator, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.Quotes == nil {
		opts.Quotes = cache.NoopQuoteCache{}
	}
	if opts.QuoteCacheTTL <= 0 {
		opts.QuoteCacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if calculator == nil {
		calculator = billing.NewCalculator(billing.DefaultRules())
	}

	return &Service{
		repo:           repo,
		calculator:     calculator,
		quotes:         opts.Quotes,
		quoteTTL:       opts.QuoteCacheTTL,
		metrics:        opts.Metrics,
		logger:         opts.Logger.Named("service"),
		validate:       newValidator(),
		defaultStoreID: opts.DefaultStoreID,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) DefaultStoreID() string {
	return s.defaultStoreID
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// check runs struct validation and reports the first failing field as an
// invalid transaction.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed %s", store.ErrInvalidTransaction, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authenticated actor required", ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: %s role required", ErrForbidden, strings.Join(roles, " or "))
}

func (s *Service) storeID(storeID string) string {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return s.defaultStoreID
	}
	return storeID
}

func (s *Service) resolveStore(ctx context.Context, storeID string) (domain.Store, error) {
	st, err := s.repo.GetStore(ctx, s.storeID(storeID))
	if err != nil {
		return domain.Store{}, fmt.Errorf("store %q: %w", s.storeID(storeID), err)
	}
	return *st, nil
}

// dayRange returns midnight-to-midnight for date in loc, defaulting to today.
func (s *Service) dayRange(date string, loc *time.Location) (time.Time, time.Time, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now().In(loc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	} else {
		parsed, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), loc)
		if err != nil {
			return time.Time{}, time.Time{}, invalidf("date must be YYYY-MM-DD")
		}
		day = parsed
	}
	return day, day.AddDate(0, 0, 1), nil
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}
