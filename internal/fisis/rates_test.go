package fisis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFetchDailyYields_ParsesSeries verifies the daily series parse and
// the date-range parameters.
func TestFetchDailyYields_ParsesSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "20250601", query.Get("startBaseDd"))
		assert.Equal(t, "20250630", query.Get("endBaseDd"))
		w.Write([]byte(`{"result":{"list":[
			{"base_dd":"20250602","yield":"3.12"},
			{"base_dd":"20250603","yield":"3.15"},
			{"base_dd":"20250604","yield":"junk"}
		]}}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewRatesClient(RatesConfig{BaseURL: server.URL, AuthKey: "test-key"})
	require.NoError(t, err)

	points, err := client.FetchDailyYields(context.Background(), "20250601", "20250630")
	require.NoError(t, err)
	require.Len(t, points, 2, "unparsable points are skipped")
	assert.Equal(t, "20250602", points[0].Date)
	assert.Equal(t, 3.12, points[0].Rate)
	assert.Equal(t, 3.15, points[1].Rate)
}

// TestFetchDailyYields_EmptyIsNoRecords verifies callers can degrade
// silently on a confirmed-empty series.
func TestFetchDailyYields_EmptyIsNoRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{}}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewRatesClient(RatesConfig{BaseURL: server.URL, AuthKey: "test-key"})
	require.NoError(t, err)

	_, err = client.FetchDailyYields(context.Background(), "20250601", "20250630")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRecords))
}
