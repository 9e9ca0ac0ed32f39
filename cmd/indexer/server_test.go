package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		method string
		err    error
		want   int
	}{
		{"healthy", http.MethodGet, nil, http.StatusOK},
		{"database down", http.MethodGet, errors.New("refused"), http.StatusServiceUnavailable},
		{"wrong method", http.MethodPost, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newMux(fakePinger{err: tt.err}).ServeHTTP(rec, httptest.NewRequest(tt.method, "/healthz", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(fakePinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
