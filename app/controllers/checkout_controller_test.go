package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/synthsara/codex/internal/pkg/billing"
)

type fakeCheckout struct {
	last billing.CheckoutRequest
	err  error
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, req billing.CheckoutRequest) (billing.CheckoutResult, error) {
	f.last = req
	if f.err != nil {
		return billing.CheckoutResult{}, f.err
	}
	return billing.CheckoutResult{SessionID: "cs_new", URL: "https://checkout.stripe.test/cs_new"}, nil
}

func newCheckoutApp(t *testing.T, fake *fakeCheckout) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.app.Post("/checkout", NewCheckoutController(fake, env.billing).HandleCreateCheckout)
	return env
}

func TestCreateCheckoutEndpoint(t *testing.T) {
	fake := &fakeCheckout{}
	env := newCheckoutApp(t, fake)
	env.createPayer(t, 42, "ember", "cus_42")

	req := httptest.NewRequest(fiber.MethodPost, "/checkout",
		strings.NewReader(`{"user_id":42,"product_type":"scroll","product_id":"007-D","email":"a@example.com"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	status, body := env.do(t, req)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.JSONEq(t, `{"session_id":"cs_new","url":"https://checkout.stripe.test/cs_new"}`, body)
	assert.Equal(t, "cus_42", fake.last.CustomerID)
	assert.Equal(t, "007-D", fake.last.ProductID)
}

func TestCreateCheckoutEndpointIgnoresCallerCustomer(t *testing.T) {
	fake := &fakeCheckout{}
	env := newCheckoutApp(t, fake)
	env.createPayer(t, 42, "ember", "")

	req := httptest.NewRequest(fiber.MethodPost, "/checkout",
		strings.NewReader(`{"user_id":42,"product_type":"bundle","product_id":"codex_bundle","CustomerID":"cus_evil"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	status, _ := env.do(t, req)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Empty(t, fake.last.CustomerID)
}

func TestCreateCheckoutEndpointErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "bad json", body: `{`, want: fiber.StatusBadRequest},
		{name: "unknown payer", body: `{"user_id":99,"product_type":"scroll","product_id":"007-D"}`, want: fiber.StatusNotFound},
		{name: "invalid", body: `{"user_id":42,"product_type":"gift"}`, err: fmt.Errorf("%w: product_type", billing.ErrInvalidCheckout), want: fiber.StatusBadRequest},
		{name: "unknown product", body: `{"user_id":42,"product_type":"scroll","product_id":"nope"}`, err: billing.ErrUnknownProduct, want: fiber.StatusNotFound},
		{name: "free", body: `{"user_id":42,"product_type":"scroll","product_id":"000"}`, err: billing.ErrNothingToPay, want: fiber.StatusUnprocessableEntity},
		{name: "provider down", body: `{"user_id":42,"product_type":"scroll","product_id":"007-D"}`, err: fmt.Errorf("%w: boom", billing.ErrCheckoutFailed), want: fiber.StatusBadGateway},
		{name: "unexpected", body: `{"user_id":42,"product_type":"scroll","product_id":"007-D"}`, err: errors.New("boom"), want: fiber.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newCheckoutApp(t, &fakeCheckout{err: tc.err})
			env.createPayer(t, 42, "ember", "")

			req := httptest.NewRequest(fiber.MethodPost, "/checkout", strings.NewReader(tc.body))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			status, body := env.do(t, req)
			assert.Equal(t, tc.want, status, body)
		})
	}
}
