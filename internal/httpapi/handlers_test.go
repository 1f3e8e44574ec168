package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"restaurantOrdering/internal/confirmation"
	"restaurantOrdering/internal/logger"
	"restaurantOrdering/internal/notify"
	"restaurantOrdering/internal/ordernum"
	"restaurantOrdering/internal/pipeline"
	"restaurantOrdering/internal/testutil"
	"restaurantOrdering/models"
	"restaurantOrdering/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "test-secret"

const validOrder = `{
	"customer_name": "Test Customer",
	"customer_email": "test@example.com",
	"order_type": "pickup",
	"items": [{"product_id": 1, "quantity": 2, "unit_price": "7.50"}],
	"subtotal": "15.00",
	"delivery_fee": "0",
	"total": "15.00"
}`

type apiHarness struct {
	srv       *httptest.Server
	transport *testutil.RecordingTransport
	failures  *repository.FailureRepository
	mr        *miniredis.Miniredis
}

func newAPI(t *testing.T, gen ordernum.Generator) *apiHarness {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, t.Name())
	orders := repository.NewOrderRepository(d)
	failures := repository.NewFailureRepository(d)
	users := repository.NewUserRepository(d)
	if _, err := users.Create(context.Background(), "root", models.RoleAdmin); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	tr := &testutil.RecordingTransport{}
	if gen == nil {
		gen = ordernum.NewDateRandom(time.UTC)
	}
	p, err := pipeline.New(pipeline.Deps{
		Numbers:  gen,
		Orders:   orders,
		Products: repository.NewProductRepository(d),
		Renderer: confirmation.NewRenderer("Test Kitchen", time.UTC),
		Delivery: notify.NewDelivery(tr, "orders@example.com", time.Second, nil),
		Failures: failures,
		Log:      logger.Discard(),
	}, pipeline.Config{Mode: pipeline.DeliverSync})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	router := NewRouter(Options{
		Pipeline:    p,
		Orders:      orders,
		Failures:    failures,
		Users:       users,
		Idempotency: NewRedisIdempotency(rc, "orders-test"),
		JWTSecret:   testSecret,
		Log:         logger.Discard(),
		Ping:        d.PingContext,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &apiHarness{srv: srv, transport: tr, failures: failures, mr: mr}
}

func (a *apiHarness) do(t *testing.T, method, path, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp, []byte(buf.String())
}

func TestSubmitOrder_Created(t *testing.T) {
	a := newAPI(t, nil)
	resp, body := a.do(t, http.MethodPost, "/orders", validOrder, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out SubmitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.OrderID == 0 || out.OrderNumber == "" || out.Status != models.OrderStatusPending {
		t.Fatalf("response = %+v", out)
	}
	if out.Delivery == nil || !out.Delivery.Success {
		t.Fatalf("delivery = %+v", out.Delivery)
	}

	resp, body = a.do(t, http.MethodGet, "/orders/"+out.OrderNumber, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d: %s", resp.StatusCode, body)
	}
	var got OrderStatusResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if got.OrderNumber != out.OrderNumber || len(got.Items) != 1 || got.Items[0].TotalPrice.StringFixed(2) != "15.00" {
		t.Fatalf("order = %s", body)
	}
	if got.Items[0].ProductName != "Garlic Knots" || got.TotalAmount.StringFixed(2) != "15.00" {
		t.Fatalf("order = %s", body)
	}
}

const deliveryOrder = `{
	"customer_name": "Dana Private",
	"customer_email": "dana@example.com",
	"customer_phone": "555-0100",
	"order_type": "delivery",
	"delivery_address": "742 Evergreen Terrace",
	"delivery_instructions": "ring twice",
	"items": [{"product_id": 1, "quantity": 2, "unit_price": "7.50"}],
	"subtotal": "15.00",
	"delivery_fee": "3.00",
	"total": "18.00"
}`

func TestGetOrder_PublicViewOmitsCustomerDetails(t *testing.T) {
	a := newAPI(t, nil)
	resp, body := a.do(t, http.MethodPost, "/orders", deliveryOrder, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	var out SubmitResponse
	_ = json.Unmarshal(body, &out)

	resp, body = a.do(t, http.MethodGet, "/orders/"+out.OrderNumber, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, body)
	}
	for _, secret := range []string{"Dana Private", "dana@example.com", "555-0100", "742 Evergreen Terrace", "ring twice", "customer_"} {
		if strings.Contains(string(body), secret) {
			t.Fatalf("public order view leaks %q: %s", secret, body)
		}
	}
	if !strings.Contains(string(body), out.OrderNumber) || !strings.Contains(string(body), "18") {
		t.Fatalf("public view missing number or total: %s", body)
	}

	if resp, _ := a.do(t, http.MethodGet, "/admin/orders/"+out.OrderNumber, "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("admin detail without token: %d", resp.StatusCode)
	}
	admin := map[string]string{"Authorization": "Bearer " + testutil.GenerateJWTHS256(t, testSecret, "root", "admin")}
	resp, body = a.do(t, http.MethodGet, "/admin/orders/"+out.OrderNumber, "", admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin detail: %d %s", resp.StatusCode, body)
	}
	var full OrderResponse
	if err := json.Unmarshal(body, &full); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if full.Order == nil || full.CustomerEmail != "dana@example.com" || full.DeliveryAddress == nil {
		t.Fatalf("admin detail = %s", body)
	}
}

func TestSubmitOrder_ErrorStatuses(t *testing.T) {
	a := newAPI(t, nil)
	cases := []struct {
		name string
		body string
		want int
		code string
	}{
		{"bad json", `{"customer_name":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", `{"customer_nickname":"x"}`, http.StatusBadRequest, "invalid_json"},
		{"total mismatch", strings.Replace(validOrder, `"total": "15.00"`, `"total": "16.00"`, 1), http.StatusBadRequest, "validation_failure"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := a.do(t, http.MethodPost, "/orders", tc.body, nil)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tc.want, body)
			}
			var e ErrorResponse
			_ = json.Unmarshal(body, &e)
			if e.Error != tc.code {
				t.Fatalf("error code = %q, want %q", e.Error, tc.code)
			}
		})
	}
}

type fixedGen string

func (g fixedGen) Generate(context.Context) (string, error) { return string(g), nil }

func TestSubmitOrder_DuplicateIdentifierIsConflict(t *testing.T) {
	a := newAPI(t, fixedGen("ORD-SAME"))
	if resp, body := a.do(t, http.MethodPost, "/orders", validOrder, nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first submit: %d %s", resp.StatusCode, body)
	}
	resp, body := a.do(t, http.MethodPost, "/orders", validOrder, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
}

type stubSubmitter struct{ err error }

func (s stubSubmitter) Submit(context.Context, pipeline.OrderRequest) (pipeline.SubmissionResult, error) {
	return pipeline.SubmissionResult{}, s.err
}

func (s stubSubmitter) Resend(context.Context, string) (models.DeliveryResult, error) {
	return models.DeliveryResult{}, s.err
}

func TestSubmitOrder_TransientIsUnavailable(t *testing.T) {
	router := NewRouter(Options{
		Pipeline: stubSubmitter{err: &pipeline.SubmissionError{Kind: pipeline.TransientStorageError, Reason: "db down"}},
		Log:      logger.Discard(),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(validOrder)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitOrder_IdempotentReplay(t *testing.T) {
	a := newAPI(t, nil)
	hdr := map[string]string{"Idempotency-Key": "abc-123"}

	resp1, body1 := a.do(t, http.MethodPost, "/orders", validOrder, hdr)
	if resp1.StatusCode != http.StatusCreated {
		t.Fatalf("first: %d %s", resp1.StatusCode, body1)
	}
	resp2, body2 := a.do(t, http.MethodPost, "/orders", validOrder, hdr)
	if resp2.StatusCode != http.StatusCreated || resp2.Header.Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay: %d %v %s", resp2.StatusCode, resp2.Header, body2)
	}
	var first, second SubmitResponse
	_ = json.Unmarshal(body1, &first)
	_ = json.Unmarshal(body2, &second)
	if first.OrderNumber != second.OrderNumber || first.OrderID != second.OrderID {
		t.Fatalf("replay returned a different order: %+v vs %+v", first, second)
	}
	if n := len(a.transport.Messages()); n != 1 {
		t.Fatalf("confirmation sent %d times", n)
	}
	if ttl := a.mr.TTL("orders-test:idempotency:abc-123"); ttl != 24*time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestSubmitOrder_IdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	a := newAPI(t, nil)
	hdr := map[string]string{"Idempotency-Key": "same-key"}
	if resp, body := a.do(t, http.MethodPost, "/orders", validOrder, hdr); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first: %d %s", resp.StatusCode, body)
	}
	other := strings.Replace(validOrder, "Test Customer", "Someone Else", 1)
	resp, body := a.do(t, http.MethodPost, "/orders", other, hdr)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get("Idempotent-Replayed") != "" {
		t.Fatal("a different body must not be replayed")
	}
	if n := len(a.transport.Messages()); n != 1 {
		t.Fatalf("confirmation sent %d times", n)
	}
}

func TestSubmitOrder_IdempotencyKeyReleasedOnFailure(t *testing.T) {
	a := newAPI(t, nil)
	hdr := map[string]string{"Idempotency-Key": "retry-me"}
	bad := strings.Replace(validOrder, `"total": "15.00"`, `"total": "1.00"`, 1)
	if resp, _ := a.do(t, http.MethodPost, "/orders", bad, hdr); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp, body := a.do(t, http.MethodPost, "/orders", validOrder, hdr); resp.StatusCode != http.StatusCreated {
		t.Fatalf("retry after failure: %d %s", resp.StatusCode, body)
	}
}

func TestSubmitOrder_InProgressKey(t *testing.T) {
	a := newAPI(t, nil)
	if err := a.mr.Set("orders-test:idempotency:busy", pendingMarker); err != nil {
		t.Fatalf("seed: %v", err)
	}
	resp, body := a.do(t, http.MethodPost, "/orders", validOrder, map[string]string{"Idempotency-Key": "busy"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	a := newAPI(t, nil)
	resp, _ := a.do(t, http.MethodGet, "/orders/ORD-NOPE", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAdmin_FailedConfirmationsAndResend(t *testing.T) {
	a := newAPI(t, nil)
	a.transport.SetErr(testutil.ErrAuthFailed)

	resp, body := a.do(t, http.MethodPost, "/orders", validOrder, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	var submitted SubmitResponse
	_ = json.Unmarshal(body, &submitted)
	if submitted.Delivery == nil || submitted.Delivery.Success || submitted.NotificationError != string(pipeline.DeliveryFailure) {
		t.Fatalf("submit response = %s", body)
	}

	// unauthenticated
	if resp, _ := a.do(t, http.MethodGet, "/admin/confirmations/failed", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	admin := map[string]string{"Authorization": "Bearer " + testutil.GenerateJWTHS256(t, testSecret, "root", "admin")}
	resp, body = a.do(t, http.MethodGet, "/admin/confirmations/failed", "", admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	var listed struct {
		Failures []models.ConfirmationFailure `json:"failures"`
		Count    int                          `json:"count"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listed.Count != 1 || listed.Failures[0].OrderNumber != submitted.OrderNumber {
		t.Fatalf("failures = %s", body)
	}

	// still failing: 502 with the delivery result
	resp, _ = a.do(t, http.MethodPost, "/admin/confirmations/"+submitted.OrderNumber+"/resend", "", admin)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("resend while failing: %d", resp.StatusCode)
	}

	a.transport.SetErr(nil)
	resp, body = a.do(t, http.MethodPost, "/admin/confirmations/"+submitted.OrderNumber+"/resend", "", admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resend: %d %s", resp.StatusCode, body)
	}
	left, _ := a.failures.ListUnresolved(context.Background(), 10)
	if len(left) != 0 {
		t.Fatalf("failure not resolved: %+v", left)
	}

	resp, _ = a.do(t, http.MethodPost, "/admin/confirmations/ORD-NOPE/resend", "", admin)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown order resend: %d", resp.StatusCode)
	}
	resp, _ = a.do(t, http.MethodGet, "/admin/confirmations/failed?limit=-1", "", admin)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	a := newAPI(t, nil)
	if resp, _ := a.do(t, http.MethodGet, "/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	down := NewRouter(Options{
		Pipeline: stubSubmitter{},
		Log:      logger.Discard(),
		Ping:     func(context.Context) error { return errors.New("db closed") },
	})
	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
