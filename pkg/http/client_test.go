package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONMergesQueryAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "usd", r.URL.Query().Get("vs"))
		assert.Equal(t, "1", r.URL.Query().Get("fixed"))
		assert.Equal(t, "k", r.Header.Get("X-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"price":42.5}`))
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second))
	var got struct {
		Price float64 `json:"price"`
	}
	err := c.GetJSON(context.Background(), srv.URL+"/p?fixed=1", url.Values{"vs": {"usd"}}, http.Header{"X-Key": {"k"}}, &got)
	require.NoError(t, err)
	assert.Equal(t, 42.5, got.Price)
}

func TestGetJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			http.Error(w, "no such coin", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient()
	err := c.GetJSON(context.Background(), srv.URL+"/missing", nil, nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Body, "no such coin")
	assert.False(t, se.Temporary())

	err = c.GetJSON(context.Background(), srv.URL+"/busy", nil, nil, nil)
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Temporary())
}
