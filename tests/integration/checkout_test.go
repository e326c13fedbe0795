//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func validCart() checkoutRequest {
	return checkoutRequest{
		Items: []checkoutItem{
			{ProductID: "1f0a3bb4-6d2e-4c6a-9a64-0c6a1c3f7a01", Quantity: 1},
		},
		ShippingAddress: map[string]any{"name": "Mario Rossi", "city": "Bologna"},
	}
}

func TestCheckout_NoAuth(t *testing.T) {
	resp := doCheckout(t, validCart(), "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCheckout_InvalidToken(t *testing.T) {
	resp := doCheckout(t, validCart(), "wrong-token")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCheckout_EmptyItems(t *testing.T) {
	req := validCart()
	req.Items = nil

	resp := doCheckout(t, req, testAPIToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	body := decodeJSON[apiResponse](t, resp)
	if body.Success {
		t.Fatal("expected success=false")
	}
	if body.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestCheckout_UnknownProductsOnly(t *testing.T) {
	req := validCart()
	req.Items = []checkoutItem{
		{ProductID: "00000000-0000-0000-0000-000000000000", Quantity: 1},
	}

	resp := doCheckout(t, req, testAPIToken)
	defer resp.Body.Close()

	// Unknown products are skipped; a cart with nothing left is a client error.
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCheckout_InvalidQuantity(t *testing.T) {
	req := validCart()
	req.Items[0].Quantity = 0

	resp := doCheckout(t, req, testAPIToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCheckout_InsufficientStock(t *testing.T) {
	req := validCart()
	req.Items[0].Quantity = 100000

	resp := doCheckout(t, req, testAPIToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	body := decodeJSON[apiResponse](t, resp)
	if body.Error == "" {
		t.Fatal("expected insufficient stock message")
	}
}

func TestCheckout_UnknownCoupon(t *testing.T) {
	req := validCart()
	req.CouponCode = "DOESNOTEXIST"

	resp := doCheckout(t, req, testAPIToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
