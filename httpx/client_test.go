package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridianlabs-xyz/route-hub/httpx"
	"github.com/zeebo/assert"
)

func TestGetJSONRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := httpx.New(2*time.Second, 3)
	var out struct {
		OK bool `json:"ok"`
	}
	err := client.GetJSON(context.Background(), srv.URL, &out)
	assert.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := httpx.New(2*time.Second, 3)
	err := client.GetJSON(context.Background(), srv.URL, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithHeaderSendsHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := httpx.New(2*time.Second, 0)
	authed := client.WithHeader("Authorization", "Bearer test-key")

	assert.NoError(t, authed.GetJSON(context.Background(), srv.URL, nil))
	assert.Equal(t, "Bearer test-key", got)

	// The original client stays key-less.
	assert.NoError(t, client.GetJSON(context.Background(), srv.URL, nil))
	assert.Equal(t, "", got)
}

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo":"pong"}`))
	}))
	defer srv.Close()

	client := httpx.New(2*time.Second, 0)
	var out struct {
		Echo string `json:"echo"`
	}
	err := client.PostJSON(context.Background(), srv.URL, map[string]string{"ping": "1"}, &out)
	assert.NoError(t, err)
	assert.Equal(t, "pong", out.Echo)
}
