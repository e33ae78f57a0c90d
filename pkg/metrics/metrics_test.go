package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.CorpusDocuments.Set(42)
	m.SearchQueriesTotal.WithLabelValues("text", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"corpus_documents 42",
		`search_queries_total{mode="text",outcome="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestNewWithRegistryRejectsDuplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry(reg)
	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	NewWithRegistry(reg)
}
