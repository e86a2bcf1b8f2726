package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zemetsskiy/subgate/internal/domain"
	"github.com/zemetsskiy/subgate/internal/infrastructure/discord"
	"github.com/zemetsskiy/subgate/internal/infrastructure/wallet"
	"github.com/zemetsskiy/subgate/internal/repositories/staterepo"
	"github.com/zemetsskiy/subgate/pkg/config"
)

const testWalletAddress = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"

type MockPricing struct {
	PriceFunc func(ctx context.Context, planID string, token domain.Token) (decimal.Decimal, error)
}

func (m *MockPricing) Price(ctx context.Context, planID string, token domain.Token) (decimal.Decimal, error) {
	return m.PriceFunc(ctx, planID, token)
}

type MockWatcher struct {
	mu        sync.Mutex
	watched   []domain.PaymentAttempt
	WatchFunc func(attempt domain.PaymentAttempt) error
}

func (m *MockWatcher) Watch(attempt domain.PaymentAttempt) error {
	m.mu.Lock()
	m.watched = append(m.watched, attempt)
	m.mu.Unlock()
	if m.WatchFunc != nil {
		return m.WatchFunc(attempt)
	}
	return nil
}

func (m *MockWatcher) Cancel(string) {}
func (m *MockWatcher) Active() int   { return 0 }
func (m *MockWatcher) Shutdown()     {}

func (m *MockWatcher) Watched() []domain.PaymentAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PaymentAttempt(nil), m.watched...)
}

type MockWallets struct {
	IssueFunc func() (wallet.Issued, error)
}

func (m *MockWallets) Issue() (wallet.Issued, error) {
	return m.IssueFunc()
}

type MockOAuth struct {
	AuthorizeURLFunc func(state string) string
	ExchangeFunc     func(ctx context.Context, code string) (string, error)
	FetchProfileFunc func(ctx context.Context, accessToken string) (discord.Profile, error)
}

func (m *MockOAuth) AuthorizeURL(state string) string {
	if m.AuthorizeURLFunc != nil {
		return m.AuthorizeURLFunc(state)
	}
	return "https://discord.example/oauth2/authorize?state=" + state
}

func (m *MockOAuth) Exchange(ctx context.Context, code string) (string, error) {
	return m.ExchangeFunc(ctx, code)
}

func (m *MockOAuth) FetchProfile(ctx context.Context, accessToken string) (discord.Profile, error) {
	return m.FetchProfileFunc(ctx, accessToken)
}

func testCatalog() *domain.Catalog {
	return domain.NewCatalog([]domain.Plan{
		{ID: "basic_1_month", PriceUSD: decimal.NewFromInt(9)},
		{ID: "vip_lifetime", PriceUSD: decimal.NewFromInt(79)},
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Payment: config.PaymentConfig{
			PollInterval: 2 * time.Second,
			Window:       10 * time.Minute,
			Tolerance:    0.97,
			MaxWatchers:  4,
		},
	}
}

type testEnv struct {
	router  *gin.Engine
	cookies []*http.Cookie
}

func newTestEnv(t *testing.T, h *Handlers) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions("subgate_session", cookie.NewStore([]byte("test-secret"))))
	router.LoadHTMLGlob("../../../web/templates/*.html")
	h.SetupHandlers(router)

	// Test-only shortcut that stamps an authenticated session.
	router.POST("/__login", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(sessionKeyUserID, c.PostForm("user_id"))
		session.Set(sessionKeyUsername, c.PostForm("username"))
		if err := session.Save(); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	return &testEnv{router: router}
}

func defaultHandlers(state staterepo.IStateStore, watcherMock *MockWatcher) *Handlers {
	return New(
		&MockPricing{
			PriceFunc: func(_ context.Context, planID string, _ domain.Token) (decimal.Decimal, error) {
				return decimal.NewFromInt(9), nil
			},
		},
		watcherMock,
		state,
		&MockWallets{
			IssueFunc: func() (wallet.Issued, error) {
				return wallet.Issued{Address: testWalletAddress}, nil
			},
		},
		&MockOAuth{},
		testCatalog(),
		nil,
		testConfig(),
		zerolog.Nop(),
	)
}

// do runs a request through the router, carrying the session cookie across
// calls the way a browser would.
func (e *testEnv) do(t *testing.T, method, path, contentType string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range e.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		e.cookies = set
	}
	return w
}

func (e *testEnv) login(t *testing.T, userID, username string) {
	t.Helper()
	form := url.Values{"user_id": {userID}, "username": {username}}
	w := e.do(t, "POST", "/__login", "application/x-www-form-urlencoded", form.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("login helper returned %d", w.Code)
	}
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestChoosePlanRejectsUnknownPlan(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	w := env.do(t, "POST", "/choose_plan", "application/x-www-form-urlencoded", "plan=basic_99_years")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp domain.ApiResponse
	decodeJSON(t, w, &resp)
	if resp.Success || !strings.Contains(resp.Message, "basic_99_years") {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestChoosePlanRedirectsToPayment(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	w := env.do(t, "POST", "/choose_plan", "application/x-www-form-urlencoded", "plan=basic_1_month")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/payment" {
		t.Errorf("redirect location = %q, want /payment", loc)
	}
}

func TestCreatePaymentRequiresPlanAndLogin(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	w := env.do(t, "POST", "/payment", "application/json", `{"token":"USDT","network":"polygon"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreatePaymentRejectsUnknownToken(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	env.login(t, "user-42", "alice#1234")
	env.do(t, "POST", "/choose_plan", "application/x-www-form-urlencoded", "plan=basic_1_month")

	w := env.do(t, "POST", "/payment", "application/json", `{"token":"DOGE","network":"polygon"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreatePaymentStartsAttempt(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	watcherMock := &MockWatcher{}
	env := newTestEnv(t, defaultHandlers(state, watcherMock))

	env.login(t, "user-42", "alice#1234")
	env.do(t, "POST", "/choose_plan", "application/x-www-form-urlencoded", "plan=basic_1_month")

	w := env.do(t, "POST", "/payment", "application/json", `{"token":"USDT","network":"polygon"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		WalletAddress string `json:"wallet_address"`
		Amount        string `json:"amount"`
		Token         string `json:"token"`
	}
	decodeJSON(t, w, &resp)
	if resp.WalletAddress != testWalletAddress {
		t.Errorf("wallet_address = %q, want %q", resp.WalletAddress, testWalletAddress)
	}
	if resp.Amount != "9" {
		t.Errorf("amount = %q, want 9", resp.Amount)
	}
	if resp.Token != "USDT" {
		t.Errorf("token = %q, want USDT", resp.Token)
	}

	watched := watcherMock.Watched()
	if len(watched) != 1 {
		t.Fatalf("watcher received %d attempts, want 1", len(watched))
	}
	attempt := watched[0]
	if attempt.Plan != "basic_1_month" || attempt.Username != "alice#1234" || attempt.UserID != "user-42" {
		t.Errorf("unexpected attempt: %+v", attempt)
	}
	if attempt.Network != domain.NetworkPolygon || attempt.Token != domain.TokenUSDT {
		t.Errorf("unexpected pair: %s/%s", attempt.Token, attempt.Network)
	}

	if _, _, ok, err := state.Status(context.Background(), testWalletAddress); err != nil || !ok {
		t.Errorf("attempt state not initialized: ok=%v err=%v", ok, err)
	}
}

func TestCreatePaymentQuoteUnavailable(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	h := defaultHandlers(state, &MockWatcher{})
	h.Pricing = &MockPricing{
		PriceFunc: func(context.Context, string, domain.Token) (decimal.Decimal, error) {
			return decimal.Zero, domain.ErrPriceUnavailable
		},
	}
	env := newTestEnv(t, h)

	env.login(t, "user-42", "alice#1234")
	env.do(t, "POST", "/choose_plan", "application/x-www-form-urlencoded", "plan=basic_1_month")

	w := env.do(t, "POST", "/payment", "application/json", `{"token":"ETH","network":"ethereum"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestCreatePaymentAtCapacity(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	watcherMock := &MockWatcher{
		WatchFunc: func(domain.PaymentAttempt) error {
			return domain.ErrTooManyAttempts
		},
	}
	env := newTestEnv(t, defaultHandlers(state, watcherMock))

	env.login(t, "user-42", "alice#1234")
	env.do(t, "POST", "/choose_plan", "application/x-www-form-urlencoded", "plan=basic_1_month")

	w := env.do(t, "POST", "/payment", "application/json", `{"token":"USDT","network":"polygon"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}

func TestCheckPaymentStatusWithoutSession(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	w := env.do(t, "GET", "/check_payment_status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var report domain.StatusReport
	decodeJSON(t, w, &report)
	if report.Confirmed || !report.Timeout {
		t.Errorf("report = %+v, want unconfirmed timeout", report)
	}
}

func TestCheckPaymentStatusLifecycle(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	env.login(t, "user-42", "alice#1234")
	env.do(t, "POST", "/choose_plan", "application/x-www-form-urlencoded", "plan=basic_1_month")
	if w := env.do(t, "POST", "/payment", "application/json", `{"token":"USDT","network":"polygon"}`); w.Code != http.StatusOK {
		t.Fatalf("create payment failed: %d %s", w.Code, w.Body.String())
	}

	// Pending: the window is still open.
	w := env.do(t, "GET", "/check_payment_status", "", "")
	var report domain.StatusReport
	decodeJSON(t, w, &report)
	if report.Confirmed || report.Timeout {
		t.Fatalf("report = %+v, want pending", report)
	}
	if report.SecondsRemaining <= 0 || report.SecondsRemaining > 600 {
		t.Errorf("seconds_remaining = %d, want within (0, 600]", report.SecondsRemaining)
	}

	// The watcher confirms in the background.
	if _, err := state.ConfirmPayment(context.Background(), testWalletAddress); err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}

	w = env.do(t, "GET", "/check_payment_status", "", "")
	report = domain.StatusReport{}
	decodeJSON(t, w, &report)
	if !report.Confirmed || report.Timeout {
		t.Errorf("report = %+v, want confirmed", report)
	}
}

func TestCheckPaymentStatusTimeout(t *testing.T) {
	state := staterepo.NewMemory(time.Hour)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	env.login(t, "user-42", "alice#1234")
	env.do(t, "POST", "/choose_plan", "application/x-www-form-urlencoded", "plan=basic_1_month")
	if w := env.do(t, "POST", "/payment", "application/json", `{"token":"USDT","network":"polygon"}`); w.Code != http.StatusOK {
		t.Fatalf("create payment failed: %d", w.Code)
	}

	// Rewind the attempt past the window; polling must not refresh it.
	started := time.Now().Add(-11 * time.Minute)
	if err := state.InitAttempt(context.Background(), testWalletAddress, started); err != nil {
		t.Fatalf("InitAttempt failed: %v", err)
	}

	w := env.do(t, "GET", "/check_payment_status", "", "")
	var report domain.StatusReport
	decodeJSON(t, w, &report)
	if report.Confirmed || !report.Timeout {
		t.Errorf("report = %+v, want timeout", report)
	}
}

func TestStoreEmailRequiresLogin(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	w := env.do(t, "POST", "/email", "application/json", `{"email":"alice@example.com"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestStoreEmailValidatesAddress(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	env.login(t, "user-42", "alice#1234")
	w := env.do(t, "POST", "/email", "application/json", `{"email":"not-an-email"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestStoreEmailPersists(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	env.login(t, "user-42", "alice#1234")
	w := env.do(t, "POST", "/email", "application/json", `{"email":"alice@example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	email, ok, err := state.GetEmail(context.Background(), "alice#1234")
	if err != nil || !ok {
		t.Fatalf("GetEmail = (%q, %v, %v)", email, ok, err)
	}
	if email != "alice@example.com" {
		t.Errorf("stored email = %q, want alice@example.com", email)
	}
}

func TestDiscordLoginRedirectsWithState(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	w := env.do(t, "POST", "/login/discord", "", "")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.Contains(loc, "state=") {
		t.Errorf("redirect location %q carries no state", loc)
	}
}

func TestOAuthCallbackRejectsStateMismatch(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	env := newTestEnv(t, defaultHandlers(state, &MockWatcher{}))

	env.do(t, "POST", "/login/discord", "", "")
	w := env.do(t, "GET", "/oauth2/callback?code=abc&state=forged", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Failed to authenticate with Discord.") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestOAuthCallbackCompletesLogin(t *testing.T) {
	state := staterepo.NewMemory(10 * time.Minute)
	h := defaultHandlers(state, &MockWatcher{})
	h.OAuth = &MockOAuth{
		ExchangeFunc: func(_ context.Context, code string) (string, error) {
			if code != "auth-code" {
				t.Errorf("exchange code = %q, want auth-code", code)
			}
			return "access-token", nil
		},
		FetchProfileFunc: func(_ context.Context, accessToken string) (discord.Profile, error) {
			if accessToken != "access-token" {
				t.Errorf("profile token = %q, want access-token", accessToken)
			}
			return discord.Profile{ID: "user-42", Username: "alice", Discriminator: "1234"}, nil
		},
	}
	env := newTestEnv(t, h)

	w := env.do(t, "POST", "/login/discord", "", "")
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect location: %v", err)
	}
	oauthState := loc.Query().Get("state")
	if oauthState == "" {
		t.Fatal("authorize URL carries no state")
	}

	w = env.do(t, "GET", "/oauth2/callback?code=auth-code&state="+oauthState, "", "")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != "/payment" {
		t.Errorf("redirect location = %q, want /payment", got)
	}

	// The session identity is the full name#discriminator handle.
	if resp := env.do(t, "POST", "/email", "application/json", `{"email":"alice@example.com"}`); resp.Code != http.StatusOK {
		t.Fatalf("email after login failed: %d", resp.Code)
	}
	if _, ok, _ := state.GetEmail(context.Background(), "alice#1234"); !ok {
		t.Error("email not stored under alice#1234")
	}
}
