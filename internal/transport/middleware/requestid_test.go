package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sigefi/budget-approval/internal/transport/middleware"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMiddleware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Middleware Suite")
}

var _ = Describe("RequestID", func() {
	It("assigns one trace id, shared by context and response header", func() {
		var seen string
		h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middleware.TraceID(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		Expect(seen).NotTo(BeEmpty())
		Expect(rec.Header().Get("X-Trace-ID")).To(Equal(seen))
	})

	It("honors a caller-supplied trace id", func() {
		var seen string
		h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middleware.TraceID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Trace-ID", "trace-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		Expect(seen).To(Equal("trace-42"))
		Expect(rec.Header().Get("X-Trace-ID")).To(Equal("trace-42"))
	})

	It("returns an empty id outside a request", func() {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		Expect(middleware.TraceID(req.Context())).To(BeEmpty())
	})
})
