package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrivingDistance_Success(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":4523.7,"duration":610.2}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/"})
	meters, err := client.DrivingDistance(context.Background(), Point{Lat: 12.9716, Lng: 77.5946}, Point{Lat: 12.9352, Lng: 77.6245})

	require.NoError(t, err)
	assert.InDelta(t, 4523.7, meters, 0.001)
	// OSRM takes lng,lat pairs
	assert.Equal(t, "/route/v1/driving/77.594600,12.971600;77.624500,12.935200", gotPath)
	assert.Equal(t, "overview=false", gotQuery)
}

func TestDrivingDistance_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"no route code", http.StatusBadRequest, `{"code":"NoRoute","message":"Impossible route"}`, ErrNoRoute},
		{"empty routes", http.StatusOK, `{"code":"Ok","routes":[]}`, ErrNoRoute},
		{"server error", http.StatusInternalServerError, `{"code":"Error"}`, ErrBadResponse},
		{"garbage body", http.StatusOK, `<html>`, ErrBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(Config{BaseURL: server.URL}).DrivingDistance(context.Background(), Point{}, Point{Lat: 1, Lng: 1})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDrivingDistance_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.DrivingDistance(context.Background(), Point{}, Point{Lat: 1, Lng: 1})
	assert.Error(t, err)
}

func TestDrivingDistance_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":1}]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(Config{BaseURL: server.URL}).DrivingDistance(ctx, Point{}, Point{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
