package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestJobsHealthWithoutInspector(t *testing.T) {
	handler := NewHandler(nil, nil)
	r := chi.NewRouter()
	r.Route("/v1/jobs", handler.MountRoutes)

	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/jobs/health", nil))

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "application/json", res.Header().Get("Content-Type"))

	var body struct {
		Queue   string `json:"queue"`
		Pending int    `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, QueueEvents, body.Queue)
	require.Equal(t, 0, body.Pending)
}
