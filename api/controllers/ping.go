package controllers

import (
	"net/http"

	"github.com/multivendhq/multivend-backend/api/middleware"
	"github.com/multivendhq/multivend-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func BuyerPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "buyer", "status": "ok"}
		if key := middleware.BuyerKeyFromContext(r.Context()); key != "" {
			payload["buyer_key"] = key
		}
		responses.WriteSuccess(w, payload)
	}
}
