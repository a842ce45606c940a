package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/database"
	"github.com/schedulo/verify/internal/delivery"
	"github.com/schedulo/verify/internal/middleware"
	"github.com/schedulo/verify/internal/models"
	"github.com/schedulo/verify/internal/services"
	"github.com/schedulo/verify/pkg/logger"
	"github.com/schedulo/verify/pkg/utils"
	"gorm.io/gorm"
)

type sentMessage struct {
	Destination string
	Subject     string
	Body        string
}

// fakeGateway records every message instead of delivering it, and can be
// told to fail the next send to exercise the DELIVERY_FAILED path.
type fakeGateway struct {
	mu       sync.Mutex
	channel  models.Channel
	sent     []sentMessage
	failNext bool
}

func (g *fakeGateway) Channel() models.Channel { return g.channel }

func (g *fakeGateway) Send(_ context.Context, destination string, msg delivery.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failNext {
		g.failNext = false
		return errors.New("provider rejected the message")
	}

	g.sent = append(g.sent, sentMessage{Destination: destination, Subject: msg.Subject, Body: msg.Body})
	return nil
}

func (g *fakeGateway) lastSent(t *testing.T) sentMessage {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.sent) == 0 {
		t.Fatal("expected at least one delivered message")
	}
	return g.sent[len(g.sent)-1]
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	engine   *services.Engine
	trust    *services.DeviceTrustManager
	sms      *fakeGateway
	email    *fakeGateway
	whatsapp *fakeGateway
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
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

	sms := &fakeGateway{channel: models.ChannelSMS}
	email := &fakeGateway{channel: models.ChannelEmail}
	whatsapp := &fakeGateway{channel: models.ChannelWhatsApp}
	sender := delivery.NewSender(5*time.Second, sms, email, whatsapp)

	store := services.NewChallengeStore(db)
	accounts := services.NewAccountDirectory(db)
	throttle := services.NewResendThrottle(store, 60*time.Second)
	engine := services.NewEngine(store, accounts, throttle, sender, 10*time.Minute, 5)
	trust := services.NewDeviceTrustManager(db, 30, 180)
	audit := services.NewAuditService(db, nil)

	challengesHandler := NewChallengesHandler(engine, audit)
	devicesHandler := NewDevicesHandler(trust, store, audit)

	app := fiber.New(fiber.Config{BodyLimit: 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", middleware.RequireServiceAuth)

	challengeRoutes := api.Group("/challenges")
	challengeRoutes.Post("/", challengesHandler.Issue)
	challengeRoutes.Post("/:id/verify", challengesHandler.Verify)
	challengeRoutes.Post("/:id/resend", challengesHandler.Resend)

	deviceRoutes := api.Group("/devices")
	deviceRoutes.Post("/check", devicesHandler.Check)
	deviceRoutes.Post("/trust", devicesHandler.TrustDevice)
	deviceRoutes.Get("/", devicesHandler.List)
	deviceRoutes.Delete("/", devicesHandler.RevokeAll)
	deviceRoutes.Delete("/:id", devicesHandler.Revoke)

	return &testEnv{app: app, db: db, engine: engine, trust: trust, sms: sms, email: email, whatsapp: whatsapp}
}

func createTestCustomer(t *testing.T, db *gorm.DB, tenantID uuid.UUID, email, phone string) *models.CustomerAccount {
	t.Helper()

	acct := &models.CustomerAccount{
		TenantID:    tenantID,
		Email:       email,
		Phone:       phone,
		DisplayName: "Test Customer",
	}
	if err := db.Create(acct).Error; err != nil {
		t.Fatalf("failed creating test customer: %v", err)
	}
	return acct
}

func serviceAuthHeaders(t *testing.T, tenantID uuid.UUID) map[string]string {
	t.Helper()

	token, err := utils.GenerateServiceToken(tenantID, "login-flow")
	if err != nil {
		t.Fatalf("failed generating service token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func codeFromMessage(t *testing.T, msg sentMessage) string {
	t.Helper()

	match := codePattern.FindStringSubmatch(msg.Body)
	if match == nil {
		t.Fatalf("no 6-digit code found in message body %q", msg.Body)
	}
	return match[1]
}

// rewindChallengeCreation backdates a challenge so the next issuance for the
// same tuple clears the resend cool-down.
func rewindChallengeCreation(t *testing.T, db *gorm.DB, challengeID string, by time.Duration) {
	t.Helper()

	err := db.Model(&models.Challenge{}).
		Where("id = ?", challengeID).
		Update("created_at", time.Now().Add(-by)).Error
	if err != nil {
		t.Fatalf("failed rewinding challenge creation time: %v", err)
	}
}

func expireChallenge(t *testing.T, db *gorm.DB, challengeID string) {
	t.Helper()

	err := db.Model(&models.Challenge{}).
		Where("id = ?", challengeID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("failed expiring challenge: %v", err)
	}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()

	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object in response, got %+v", body)
	}
	return data
}
