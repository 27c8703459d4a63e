package debug

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadyEndpoint(t *testing.T) {
	mux := GetMux(false)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	SetNotReady()
	assert.Equal(t, http.StatusOK, get("/health"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready"))

	SetReady()
	assert.Equal(t, http.StatusOK, get("/ready"))

	configured := false
	SetReadyCheck(func() bool { return configured })
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready"))
	configured = true
	assert.Equal(t, http.StatusOK, get("/ready"))

	SetReadyCheck(nil)
	SetNotReady()

	assert.Equal(t, http.StatusOK, get("/metrics"))
	assert.Equal(t, http.StatusNotFound, get("/debug/heap/"))
}
