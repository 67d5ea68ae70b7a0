package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invdomain "github.com/nmalhotra/orderflow/internal/inventory/domain"
	"github.com/nmalhotra/orderflow/internal/order/application"
	"github.com/nmalhotra/orderflow/internal/order/domain"
)

type fakePlacer struct {
	outcome domain.Outcome
	lastReq application.PlaceRequest
}

func (f *fakePlacer) Place(_ context.Context, req application.PlaceRequest) domain.Outcome {
	f.lastReq = req
	if f.outcome.Kind == domain.OutcomeCommitted && f.outcome.Order.ID == "" {
		o := req.Order
		o.Total = domain.TotalOf(o.Items)
		return domain.Committed(o)
	}
	return f.outcome
}

type fakeReader struct {
	order domain.Order
	err   error
}

func (f *fakeReader) Get(_ context.Context, _ string) (domain.Order, error) {
	return f.order, f.err
}

func newServer(placer *fakePlacer, reader *fakeReader) *httptest.Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httptest.NewServer(NewHandler(log, placer, reader).Routes())
}

func postOrder(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestCreateOrderCommitted(t *testing.T) {
	placer := &fakePlacer{outcome: domain.Outcome{Kind: domain.OutcomeCommitted}}
	srv := newServer(placer, &fakeReader{})
	defer srv.Close()

	resp := postOrder(t, srv, `{"id":"o1","branch_id":"b1","items":[{"product_id":"p1","quantity":3,"unit_price":"15.00"}]}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "o1", body["order_id"])
	assert.False(t, placer.lastReq.IsUpdate)
}

func TestCreateOrderGeneratesIDWhenMissing(t *testing.T) {
	placer := &fakePlacer{outcome: domain.Outcome{Kind: domain.OutcomeCommitted}}
	srv := newServer(placer, &fakeReader{})
	defer srv.Close()

	resp := postOrder(t, srv, `{"branch_id":"b1","items":[]}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, placer.lastReq.Order.ID)
}

func TestCreateOrderDeclined(t *testing.T) {
	placer := &fakePlacer{outcome: domain.Declined("card declined")}
	srv := newServer(placer, &fakeReader{})
	defer srv.Close()

	resp := postOrder(t, srv, `{"id":"o1","items":[{"product_id":"p1","quantity":1,"unit_price":"5.00"}]}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "card declined", body["error"])
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	placer := &fakePlacer{outcome: domain.InsufficientStock([]invdomain.Violation{
		{ProductID: "p1", Reason: invdomain.ReasonInsufficientStock, Available: 1, Requested: 5},
	})}
	srv := newServer(placer, &fakeReader{})
	defer srv.Close()

	resp := postOrder(t, srv, `{"id":"o1","items":[{"product_id":"p1","quantity":5,"unit_price":"5.00"}]}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var body struct {
		Violations []invdomain.Violation `json:"violations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Violations, 1)
	assert.Equal(t, "p1", body.Violations[0].ProductID)
}

func TestCreateOrderFailure(t *testing.T) {
	placer := &fakePlacer{outcome: domain.Failed(errors.New("pg down"))}
	srv := newServer(placer, &fakeReader{})
	defer srv.Close()

	resp := postOrder(t, srv, `{"id":"o1","items":[{"product_id":"p1","quantity":1,"unit_price":"5.00"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCreateOrderBadBody(t *testing.T) {
	srv := newServer(&fakePlacer{}, &fakeReader{})
	defer srv.Close()

	resp := postOrder(t, srv, `{not json`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateOrderFlags(t *testing.T) {
	placer := &fakePlacer{outcome: domain.Outcome{Kind: domain.OutcomeCommitted}}
	srv := newServer(placer, &fakeReader{})
	defer srv.Close()

	body := `{"items":[{"product_id":"p1","quantity":1,"unit_price":"5.00"}],"items_changed":false}`
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/orders/o7", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "o7", placer.lastReq.Order.ID, "id comes from the URL")
	assert.True(t, placer.lastReq.IsUpdate)
	assert.False(t, placer.lastReq.ItemsChanged)
}

func TestGetOrder(t *testing.T) {
	reader := &fakeReader{order: domain.NewOrder("o1", "b1", "alice", []domain.LineItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("5.00")},
	})}
	srv := newServer(&fakePlacer{}, reader)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/orders/o1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "o1", body["id"])
}

func TestGetOrderNotFound(t *testing.T) {
	reader := &fakeReader{err: pgx.ErrNoRows}
	srv := newServer(&fakePlacer{}, reader)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/orders/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
