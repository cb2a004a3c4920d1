package verifier_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rakhadjo/payverify/internal/events"
	"github.com/rakhadjo/payverify/internal/intent"
	"github.com/rakhadjo/payverify/internal/verifier"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *captureNotifier) topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Topic)
	}
	return out
}

type verifyFixture struct {
	store    *intent.MemStore
	router   chi.Router
	notifier *captureNotifier
}

func newVerifyFixture(t *testing.T, guard *verifier.ReplayGuard) verifyFixture {
	t.Helper()
	store := intent.NewMemStore()
	svc := newVerifier(t, store)
	notifier := &captureNotifier{}
	h := &verifier.Handler{
		Svc:    svc,
		Guard:  guard,
		Events: &events.Bus{Notifiers: []events.Notifier{notifier}},
	}
	r := chi.NewRouter()
	r.Post("/v1/orders/{orderId}/verify", h.Verify)
	return verifyFixture{store: store, router: r, notifier: notifier}
}

func newGuard(t *testing.T) *verifier.ReplayGuard {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &verifier.ReplayGuard{Client: client, TTL: time.Hour}
}

func postVerify(router chi.Router, orderID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/orders/"+orderID+"/verify", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func verifyBody(orderID, paymentID, sig string) string {
	b, _ := json.Marshal(map[string]string{
		"orderId":   orderID,
		"paymentId": paymentID,
		"signature": sig,
	})
	return string(b)
}

func TestVerifyHandlerVerified(t *testing.T) {
	fx := newVerifyFixture(t, nil)
	seedIntent(t, fx.store, "ord_e2e")

	sig := verifier.Signature([]byte(testSecret), "ord_e2e", "pay_abc")
	rec := postVerify(fx.router, "ord_e2e", verifyBody("ord_e2e", "pay_abc", sig))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		OrderID   string `json:"orderId"`
		PaymentID string `json:"paymentId"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ord_e2e", resp.OrderID)
	require.Equal(t, "pay_abc", resp.PaymentID)
	require.Equal(t, "VERIFIED", resp.Status)
	require.Equal(t, []string{events.TopicOrderVerified}, fx.notifier.topics())
}

func TestVerifyHandlerFailedSignature(t *testing.T) {
	fx := newVerifyFixture(t, nil)
	seedIntent(t, fx.store, "ord_e2e")

	rec := postVerify(fx.router, "ord_e2e", verifyBody("ord_e2e", "pay_abc", strings.Repeat("0", 64)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"status":"FAILED"`)
	require.Equal(t, []string{events.TopicPaymentFailed}, fx.notifier.topics())

	got, err := fx.store.Get(context.Background(), "ord_e2e")
	require.NoError(t, err)
	require.Equal(t, intent.StatusFailed, got.Status)
}

func TestVerifyHandlerDuplicateBody(t *testing.T) {
	fx := newVerifyFixture(t, newGuard(t))
	seedIntent(t, fx.store, "ord_e2e")

	sig := verifier.Signature([]byte(testSecret), "ord_e2e", "pay_abc")
	body := verifyBody("ord_e2e", "pay_abc", sig)

	rec := postVerify(fx.router, "ord_e2e", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = postVerify(fx.router, "ord_e2e", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "REPLAY")
}

func TestVerifyHandlerSettledOrder(t *testing.T) {
	// A fresh payload against an already settled order passes the transport
	// guard but is rejected by the core's state check.
	fx := newVerifyFixture(t, newGuard(t))
	seedIntent(t, fx.store, "ord_e2e")

	sig := verifier.Signature([]byte(testSecret), "ord_e2e", "pay_abc")
	rec := postVerify(fx.router, "ord_e2e", verifyBody("ord_e2e", "pay_abc", sig))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sig2 := verifier.Signature([]byte(testSecret), "ord_e2e", "pay_other")
	rec = postVerify(fx.router, "ord_e2e", verifyBody("ord_e2e", "pay_other", sig2))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_STATE")
	require.Equal(t, []string{events.TopicOrderVerified, events.TopicReplayRejected}, fx.notifier.topics())
}

func TestVerifyHandlerPathBodyMismatch(t *testing.T) {
	fx := newVerifyFixture(t, newGuard(t))
	seedIntent(t, fx.store, "ord_victim")
	seedIntent(t, fx.store, "ord_other")

	sig := verifier.Signature([]byte(testSecret), "ord_other", "pay_abc")
	body := verifyBody("ord_other", "pay_abc", sig)
	rec := postVerify(fx.router, "ord_victim", body)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "ORDER_ID_MISMATCH")

	for _, id := range []string{"ord_victim", "ord_other"} {
		got, err := fx.store.Get(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, intent.StatusCreated, got.Status)
	}

	// The rejected attempt must not poison the replay guard for the
	// correctly addressed retry.
	rec = postVerify(fx.router, "ord_other", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"status":"VERIFIED"`)
}

func TestVerifyHandlerUnknownOrder(t *testing.T) {
	fx := newVerifyFixture(t, nil)
	rec := postVerify(fx.router, "ord_none", verifyBody("ord_none", "pay_1", strings.Repeat("a", 64)))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "ORDER_NOT_FOUND")
}

func TestVerifyHandlerValidation(t *testing.T) {
	fx := newVerifyFixture(t, nil)
	cases := map[string]string{
		"not json":       "{",
		"unknown field":  `{"orderId":"o","paymentId":"p","signature":"s","extra":1}`,
		"missing fields": `{"orderId":"o"}`,
		"empty payload":  `{}`,
	}
	for name, body := range cases {
		rec := postVerify(fx.router, "ord_1", body)
		require.Equalf(t, http.StatusBadRequest, rec.Code, "%s: %s", name, rec.Body.String())
	}
}
