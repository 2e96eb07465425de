package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"vega/internal/core"
	"vega/internal/types"
)

// routeRegistrar is implemented by every handler in this package.
type routeRegistrar interface {
	RegisterRoutes(r chi.Router)
}

func newTestRouter(h routeRegistrar) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)
	return r
}

func withUser(ctx context.Context, userID string) context.Context {
	return types.WithActor(ctx, types.Actor{ID: userID, Type: types.ActorTypeUser, Email: userID + "@example.com"})
}

func makeRequest(t *testing.T, method, path string, body any, userID string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(withUser(req.Context(), userID))
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func parseJSON(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	parseJSON(t, rr, &resp)
	return resp.Error.Code
}
