package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/focusms/server-go/internal/model"
)

func TestRateLimitMiddleware(t *testing.T) {
	ownerCtx := func(r *http.Request) *http.Request {
		ctx := context.WithValue(r.Context(), OwnerContextKey, model.AnonymousOwner("device-abc"))
		return r.WithContext(ctx)
	}

	t.Run("passes everything through without Redis", func(t *testing.T) {
		m := NewRateLimitMiddleware(nil, 120)
		handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		for i := 0; i < 200; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, ownerCtx(httptest.NewRequest(http.MethodGet, "/v1/block", nil)))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("passes requests without an owner through", func(t *testing.T) {
		m := NewRateLimitMiddleware(nil, 120)
		handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
