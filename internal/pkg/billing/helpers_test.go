package billing

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func createPayer(t *testing.T, db *gorm.DB, id uint, tier, customerID, subscriptionID string) *models.User {
	t.Helper()
	u := &models.User{
		ID:                   id,
		Name:                 "payer",
		Email:                "payer@example.com",
		Tier:                 tier,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func loadPayer(t *testing.T, db *gorm.DB, id uint) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return u
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// countingRepo records grant calls and can fail the next N of them.
type countingRepo struct {
	Repository
	grantCalls  atomic.Int32
	payerWrites atomic.Int32
	failGrants  atomic.Int32
}

func (r *countingRepo) GrantContent(ctx context.Context, userID uint, contentIDs []string, purchaseID uint) (int64, error) {
	r.grantCalls.Add(1)
	if r.failGrants.Load() > 0 {
		r.failGrants.Add(-1)
		return 0, errors.New("connection reset")
	}
	return r.Repository.GrantContent(ctx, userID, contentIDs, purchaseID)
}

func (r *countingRepo) UpdatePayerBilling(ctx context.Context, userID uint, update PayerBillingUpdate) error {
	r.payerWrites.Add(1)
	return r.Repository.UpdatePayerBilling(ctx, userID, update)
}

type recordingInvalidator struct {
	mu     sync.Mutex
	payers []uint
}

func (r *recordingInvalidator) InvalidatePayer(_ context.Context, payerID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payers = append(r.payers, payerID)
	return nil
}

func (r *recordingInvalidator) calls() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint, len(r.payers))
	copy(out, r.payers)
	return out
}
