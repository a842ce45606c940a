package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/database"
	"github.com/schedulo/verify/internal/delivery"
	"github.com/schedulo/verify/internal/models"
	"github.com/schedulo/verify/pkg/logger"
	"github.com/schedulo/verify/pkg/utils"
	"gorm.io/gorm"
)

var serviceTestSetupOnce sync.Once

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	serviceTestSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureDigest("test-digest-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	return db
}

// recordingGateway keeps delivered messages in memory for assertions.
type recordingGateway struct {
	mu      sync.Mutex
	channel models.Channel
	bodies  []string
	fail    bool
}

func (g *recordingGateway) Channel() models.Channel { return g.channel }

func (g *recordingGateway) Send(_ context.Context, _ string, msg delivery.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fail {
		return errors.New("test delivery failure")
	}
	g.bodies = append(g.bodies, msg.Body)
	return nil
}

type engineFixture struct {
	db     *gorm.DB
	store  *ChallengeStore
	engine *Engine
	sms    *recordingGateway

	now time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db := setupTestDB(t)
	store := NewChallengeStore(db)
	sms := &recordingGateway{channel: models.ChannelSMS}
	sender := delivery.NewSender(5*time.Second, sms)
	engine := NewEngine(store, NewAccountDirectory(db), NewResendThrottle(store, time.Minute), sender, 10*time.Minute, 5)

	f := &engineFixture{db: db, store: store, engine: engine, sms: sms, now: time.Now().UTC()}
	engine.Now = func() time.Time { return f.now }
	return f
}

func (f *engineFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *engineFixture) createCustomer(t *testing.T, tenantID uuid.UUID) *models.CustomerAccount {
	t.Helper()

	acct := &models.CustomerAccount{
		TenantID: tenantID,
		Email:    "customer@example.com",
		Phone:    "+15550100000",
	}
	if err := f.db.Create(acct).Error; err != nil {
		t.Fatalf("failed creating customer: %v", err)
	}
	return acct
}

func (f *engineFixture) issue(t *testing.T, tenantID uuid.UUID, acct *models.CustomerAccount, purpose models.Purpose) *IssueResult {
	t.Helper()

	result, err := f.engine.Issue(context.Background(), IssueRequest{
		TenantID:    tenantID,
		SubjectID:   acct.ID,
		SubjectType: models.SubjectCustomer,
		Channel:     models.ChannelSMS,
		Purpose:     purpose,
	})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return result
}

// lastCode digs the plaintext code back out of the last delivered message.
func (f *engineFixture) lastCode(t *testing.T) string {
	t.Helper()

	f.sms.mu.Lock()
	defer f.sms.mu.Unlock()

	if len(f.sms.bodies) == 0 {
		t.Fatal("no delivered messages")
	}
	body := f.sms.bodies[len(f.sms.bodies)-1]
	for i := 0; i+6 <= len(body); i++ {
		candidate := body[i : i+6]
		if isDigits(candidate) {
			return candidate
		}
	}
	t.Fatalf("no 6-digit code in body %q", body)
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
