package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "6", r.URL.Query().Get("limit"))
		assert.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		assert.Equal(t, "Calle Mayor 1, Madrid", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"display_name":"Calle Mayor 1, Madrid","lat":"40.4155","lon":"-3.7074","address":{"city":"Madrid","country":"España"}},
			{"display_name":"broken","lat":"x","lon":"y","address":{}},
			{"display_name":"Mayor, Alcalá","lat":"40.48","lon":"-3.36","address":{"town":"Alcalá de Henares"}}
		]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	places, err := c.Search(context.Background(), "Calle Mayor 1, Madrid")
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "Madrid", places[0].City)
	assert.InDelta(t, 40.4155, places[0].Lat, 1e-9)
	assert.Equal(t, "Alcalá de Henares", places[1].City)

	_, err = c.Search(context.Background(), "calle mayor 1, madrid")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second lookup is served from cache")

	p, err := c.Geocode(context.Background(), "Calle Mayor 1, Madrid")
	require.NoError(t, err)
	assert.InDelta(t, -3.7074, p.Lon, 1e-9)
}

func TestGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, nil).Geocode(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, nil).Search(context.Background(), "x")
	assert.Error(t, err)
}

func TestSearch_EmptyQuery(t *testing.T) {
	places, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil).Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, places)
}
