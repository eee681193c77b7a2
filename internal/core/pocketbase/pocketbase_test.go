package pocketbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// fakeCollection 以 total 筆記錄模擬 PocketBase 分頁
func fakeCollection(t *testing.T, total int, requests *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))

		items := []map[string]interface{}{}
		for i := (page - 1) * perPage; i < page*perPage && i < total; i++ {
			items = append(items, map[string]interface{}{"id": fmt.Sprintf("r%d", i), "seq": i})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"page": page, "perPage": perPage, "items": items})
	}))
}

func newTestClient(url string, perPage int) *Client {
	return NewClient(&config.PocketBaseConfig{
		URL:           url,
		AdminEmail:    "admin@example.com",
		AdminPassword: "secret",
		PerPage:       perPage,
		Timeout:       5 * time.Second,
	})
}

func TestFetchAllPageCounts(t *testing.T) {
	cases := []struct {
		name     string
		total    int
		perPage  int
		requests int32
	}{
		{"empty collection", 0, 5, 1},
		{"single short page", 3, 5, 1},
		{"exactly one full page", 5, 5, 2},
		{"several pages", 12, 5, 3},
		{"exact multiple", 10, 5, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var requests int32
			srv := fakeCollection(t, tc.total, &requests)
			defer srv.Close()

			records, err := newTestClient(srv.URL, tc.perPage).FetchAll(context.Background(), "recipe", ListOptions{})
			require.NoError(t, err)
			assert.Len(t, records, tc.total)
			assert.Equal(t, tc.requests, atomic.LoadInt32(&requests))
			for i, r := range records {
				assert.Equal(t, fmt.Sprintf("r%d", i), r.ID())
			}
		})
	}
}

func TestFetchAllPassesQueryOptions(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/collections/country/records", r.URL.Path)
		q := r.URL.Query()
		got = map[string]string{"filter": q.Get("filter"), "sort": q.Get("sort"), "fields": q.Get("fields")}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 500).FetchAll(context.Background(), "country", ListOptions{
		Filter: `code="IN"`,
		Sort:   "name",
		Fields: "id,name",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"filter": `code="IN"`, "sort": "name", "fields": "id,name"}, got)
}

func TestFetchAllFailureReturnsNoPartialResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL, 2).FetchAll(context.Background(), "recipe", ListOptions{})
	require.Error(t, err)
	assert.Nil(t, records)
	assert.True(t, errors.Is(err, common.ErrServiceError))
	assert.Contains(t, err.Error(), "page 2")
}

func TestFetchAllTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, 2).FetchAll(context.Background(), "recipe", ListOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCommunication))
}

func TestCreateReusesTokenAndRetriesOnUnauthorized(t *testing.T) {
	var logins, creates int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admins/auth-with-password":
			n := atomic.AddInt32(&logins, 1)
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "admin@example.com", body["identity"])
			_, _ = fmt.Fprintf(w, `{"token":"tok-%d"}`, n)
		case "/api/collections/recipe/records":
			n := atomic.AddInt32(&creates, 1)
			// 第一個 token 在第二次寫入時過期
			if n == 2 && r.Header.Get("Authorization") == "tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = fmt.Fprintf(w, `{"id":"rec%d","field_id":"REC00%d"}`, n, n)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 500)
	ctx := context.Background()

	first, err := client.Create(ctx, "recipe", map[string]interface{}{"name": "A"})
	require.NoError(t, err)
	assert.Equal(t, "rec1", first.ID())

	second, err := client.Create(ctx, "recipe", map[string]interface{}{"name": "B"})
	require.NoError(t, err)
	assert.Equal(t, "rec3", second.ID())

	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
	assert.Equal(t, int32(3), atomic.LoadInt32(&creates))
}

func TestDeleteRetriesOnUnauthorized(t *testing.T) {
	var logins, deletes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admins/auth-with-password":
			n := atomic.AddInt32(&logins, 1)
			_, _ = fmt.Fprintf(w, `{"token":"tok-%d"}`, n)
		case "/api/collections/recipe/records/rec1":
			assert.Equal(t, http.MethodDelete, r.Method)
			atomic.AddInt32(&deletes, 1)
			if r.Header.Get("Authorization") == "tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 500)
	require.NoError(t, client.Delete(context.Background(), "recipe", "rec1"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
	assert.Equal(t, int32(2), atomic.LoadInt32(&deletes))

	err := client.Delete(context.Background(), "recipe", "missing")
	assert.True(t, errors.Is(err, common.ErrServiceError))
}

func TestCreateAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Failed to authenticate."}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 500).Create(context.Background(), "recipe", map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrServiceError))
	assert.Contains(t, err.Error(), "pocketbase.auth")
}

func TestRecordAccessors(t *testing.T) {
	r := Record{"name": "Palm Oil", "cost": json.Number("6.5"), "n": 3.0, "price": "2.25"}
	assert.Equal(t, "Palm Oil", r.String("name"))
	assert.Equal(t, "6.5", r.String("cost"))
	assert.Equal(t, "", r.String("missing"))
	assert.InDelta(t, 6.5, r.Float("cost"), 1e-9)
	assert.InDelta(t, 3.0, r.Float("n"), 1e-9)
	assert.InDelta(t, 2.25, r.Float("price"), 1e-9)
	assert.Zero(t, r.Float("name"))
}

func TestQuoteFilterValue(t *testing.T) {
	assert.Equal(t, `"Palm Oil"`, QuoteFilterValue("Palm Oil"))
	assert.Equal(t, `"5\" pan"`, QuoteFilterValue(`5" pan`))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"message":"API is healthy."}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL, 5).Health(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	err := newTestClient(down.URL, 5).Health(context.Background())
	assert.True(t, errors.Is(err, common.ErrServiceError))
}
