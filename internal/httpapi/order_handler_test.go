package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/handler"
	"github.com/timour/order-saga/internal/idempotency"
	"github.com/timour/order-saga/internal/inventory"
	"github.com/timour/order-saga/internal/orderstore"
	"go.uber.org/zap"
)

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func newTestServer() (*Server, *bus.FakePublisher, *orderstore.MemStore) {
	store := orderstore.NewMemStore()
	pub := bus.NewFakePublisher()
	idem := idempotency.NewMemStore()
	oh := handler.NewOrderHandler(store, idem, pub, nil)
	engine := inventory.New(zap.NewNop())
	logger := slog.Default()
	return NewServer(oh, engine, nil, logger), pub, store
}

func TestCreateOrderEndpointPublishesOnce(t *testing.T) {
	srv, pub, _ := newTestServer()
	mux := srv.Mux()

	body := bytes.NewBufferString(`{"customerId":"cust-1","items":[{"productId":"p1","quantity":2,"unitPrice":"60.00"}]}`)
	req := httptest.NewRequest("POST", "/orders", body)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, 201, w.Code)
	require.Equal(t, 1, pub.Count(bus.OrderCreated))

	var resp orderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "120.00", resp.TotalAmount)
	require.Equal(t, "Pending", resp.Status)
}

func TestCreateOrderEndpointRejectsInvalidBody(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := srv.Mux()

	req := httptest.NewRequest("POST", "/orders", bytes.NewBufferString(`{"customerId":""}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, 400, w.Code)
}

func TestCancelEndpointReturnsConflictPastWindow(t *testing.T) {
	srv, _, store := newTestServer()
	mux := srv.Mux()

	createReq := httptest.NewRequest("POST", "/orders", bytes.NewBufferString(
		`{"customerId":"cust-1","items":[{"productId":"p1","quantity":1,"unitPrice":"200.00"}]}`))
	createW := httptest.NewRecorder()
	mux.ServeHTTP(createW, createReq)
	var created orderResponse
	require.NoError(t, json.Unmarshal(createW.Body.Bytes(), &created))

	order, err := store.Get(createReq.Context(), mustParseUUID(t, created.ID))
	require.NoError(t, err)
	order.CreatedAt = order.CreatedAt.Add(-3 * time.Hour)
	require.NoError(t, store.Save(createReq.Context(), order))

	req := httptest.NewRequest("PUT", "/orders/"+created.ID+"/cancel", bytes.NewBufferString(`{"reason":"changed my mind"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, 409, w.Code)
}

func TestAdminInventoryRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := srv.Mux()

	setReq := httptest.NewRequest("PUT", "/inventory/p1", bytes.NewBufferString(`{"quantity":42}`))
	setW := httptest.NewRecorder()
	mux.ServeHTTP(setW, setReq)
	require.Equal(t, 204, setW.Code)

	getReq := httptest.NewRequest("GET", "/inventory/p1", nil)
	getW := httptest.NewRecorder()
	mux.ServeHTTP(getW, getReq)
	require.Equal(t, 200, getW.Code)

	var out map[string]int
	body, _ := io.ReadAll(getW.Body)
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 42, out["p1"])
}
