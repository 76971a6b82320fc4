package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/cache"
)

var (
	ErrPayerNotFound = errors.New("entitlements: payer not found")
	ErrNoGrant       = errors.New("entitlements: content not granted")
)

const defaultCacheTTL = 5 * time.Minute

// Grant is the read model of one content entitlement.
type Grant struct {
	ContentID       string     `json:"content_id"`
	GrantedAt       time.Time  `json:"granted_at"`
	FirstAccessedAt *time.Time `json:"first_accessed_at,omitempty"`
}

// Access answers whether a payer may open a content item and whether this
// would be the first time.
type Access struct {
	ContentID   string `json:"content_id"`
	HasAccess   bool   `json:"has_access"`
	IsFirstTime bool   `json:"is_first_time"`
	Free        bool   `json:"free,omitempty"`
}

// snapshot is what gets cached per payer.
type snapshot struct {
	Known  bool    `json:"known"`
	Tier   Tier    `json:"tier"`
	Grants []Grant `json:"grants"`
}

// Service serves entitlement reads through a redis read-through cache.
type Service struct {
	repo  Repository
	cache *cache.Store
	ttl   time.Duration
	free  map[string]struct{}
	now   func() time.Time
}

// NewService wires the read service. store may be nil to disable caching.
func NewService(repo Repository, store *cache.Store, ttl time.Duration, freeContent ...string) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	free := make(map[string]struct{}, len(freeContent))
	for _, id := range freeContent {
		free[id] = struct{}{}
	}
	return &Service{repo: repo, cache: store, ttl: ttl, free: free, now: time.Now}
}

func NewServiceFromDB(db *gorm.DB, store *cache.Store, ttl time.Duration, freeContent ...string) *Service {
	return NewService(NewRepository(db), store, ttl, freeContent...)
}

func cacheKey(payerID uint) string {
	return "entitlements:" + strconv.FormatUint(uint64(payerID), 10)
}

// Snapshots live under a per-payer generation. Invalidation bumps the
// generation, so a reader that loaded before a write can only fill a key
// nobody reads any more.
func generationKey(payerID uint) string {
	return cacheKey(payerID) + ":gen"
}

func snapshotKey(payerID uint, gen int64) string {
	return cacheKey(payerID) + ":v" + strconv.FormatInt(gen, 10)
}

func (s *Service) load(ctx context.Context, payerID uint) (snapshot, error) {
	var snap snapshot
	gen, err := s.cache.Version(ctx, generationKey(payerID))
	cacheable := err == nil
	if err != nil {
		fiberlog.Warnf("[Entitlements] Cache generation for payer %d unavailable: %v", payerID, err)
	} else if hit, err := s.cache.GetJSON(ctx, snapshotKey(payerID, gen), &snap); err != nil {
		fiberlog.Warnf("[Entitlements] Cache read for payer %d failed: %v", payerID, err)
	} else if hit {
		return snap, nil
	}

	snap = snapshot{Tier: DefaultTier, Grants: []Grant{}}
	payer, err := s.repo.GetPayer(ctx, payerID)
	switch {
	case err == nil:
		snap.Known = true
		snap.Tier = NormalizeTier(payer.Tier)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return snapshot{}, fmt.Errorf("load payer %d: %w", payerID, err)
	}

	rows, err := s.repo.ListGrants(ctx, payerID)
	if err != nil {
		return snapshot{}, fmt.Errorf("list grants for payer %d: %w", payerID, err)
	}
	for _, g := range rows {
		snap.Grants = append(snap.Grants, Grant{
			ContentID:       g.ContentID,
			GrantedAt:       g.GrantedAt,
			FirstAccessedAt: g.FirstAccessedAt,
		})
	}

	if cacheable {
		if err := s.cache.SetJSON(ctx, snapshotKey(payerID, gen), snap, s.ttl); err != nil {
			fiberlog.Warnf("[Entitlements] Cache write for payer %d failed: %v", payerID, err)
		}
	}
	return snap, nil
}

// ListGrants returns every content grant for the payer, oldest first.
func (s *Service) ListGrants(ctx context.Context, payerID uint) ([]Grant, error) {
	snap, err := s.load(ctx, payerID)
	if err != nil {
		return nil, err
	}
	return snap.Grants, nil
}

// CurrentTier returns the payer's membership tier.
func (s *Service) CurrentTier(ctx context.Context, payerID uint) (Tier, error) {
	snap, err := s.load(ctx, payerID)
	if err != nil {
		return "", err
	}
	if !snap.Known {
		return DefaultTier, fmt.Errorf("%w: %d", ErrPayerNotFound, payerID)
	}
	return snap.Tier, nil
}

// CheckAccess reports access to one content item without marking it opened.
func (s *Service) CheckAccess(ctx context.Context, payerID uint, contentID string) (Access, error) {
	contentID = ContentID(contentID)
	access := Access{ContentID: contentID}
	if _, ok := s.free[contentID]; ok {
		access.HasAccess = true
		access.Free = true
		return access, nil
	}

	snap, err := s.load(ctx, payerID)
	if err != nil {
		return Access{}, err
	}
	for _, g := range snap.Grants {
		if g.ContentID == contentID {
			access.HasAccess = true
			access.IsFirstTime = g.FirstAccessedAt == nil
			break
		}
	}
	return access, nil
}

// MarkFirstAccess records that the payer opened the content. It returns true
// exactly once per grant, for the "first reveal".
func (s *Service) MarkFirstAccess(ctx context.Context, payerID uint, contentID string) (bool, error) {
	contentID = ContentID(contentID)
	first, err := s.repo.MarkFirstAccess(ctx, payerID, contentID, s.now())
	if err != nil {
		return false, fmt.Errorf("mark first access: %w", err)
	}
	if !first {
		if _, err := s.repo.GetGrant(ctx, payerID, contentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, fmt.Errorf("%w: payer %d content %q", ErrNoGrant, payerID, contentID)
			}
			return false, fmt.Errorf("load grant: %w", err)
		}
		return false, nil
	}

	if err := s.InvalidatePayer(ctx, payerID); err != nil {
		fiberlog.Warnf("[Entitlements] Cache invalidation for payer %d failed: %v", payerID, err)
	}
	return true, nil
}

// ListPurchases returns the payer's payment history, newest first.
func (s *Service) ListPurchases(ctx context.Context, payerID uint, limit int) ([]models.Purchase, error) {
	purchases, err := s.repo.ListPurchases(ctx, payerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases for payer %d: %w", payerID, err)
	}
	if purchases == nil {
		purchases = []models.Purchase{}
	}
	return purchases, nil
}

// InvalidatePayer moves the payer to a new cache generation and drops the
// previous snapshot.
func (s *Service) InvalidatePayer(ctx context.Context, payerID uint) error {
	gen, err := s.cache.Bump(ctx, generationKey(payerID))
	if err != nil {
		return err
	}
	if gen == 0 {
		return nil
	}
	return s.cache.Delete(ctx, snapshotKey(payerID, gen-1))
}
