package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL), WithRateLimit(1000, 100))
}

func TestListActive_FiltersAndDedups(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[
			{"id":"m1","question":"Will X win?","yesPrice":0.4,"active":true,"closed":false},
			{"id":"m2","question":"will x win","yesPrice":0.41,"active":true,"closed":false},
			{"id":"m3","question":"Closed market","yesPrice":0.5,"active":true,"closed":true},
			{"id":"m4","question":"Another question","yesPrice":0.6,"active":true,"closed":false}
		]`))
	})

	ids, err := client.ListActive(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids after filter+dedup, got %d: %v", len(ids), ids)
	}
	if ids[0] != "m1" || ids[1] != "m4" {
		t.Errorf("Unexpected ids: %v", ids)
	}
}

func TestListActive_HonorsLimit(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"m1","question":"q1","active":true,"closed":false},
			{"id":"m2","question":"q2","active":true,"closed":false},
			{"id":"m3","question":"q3","active":true,"closed":false}
		]`))
	})

	ids, err := client.ListActive(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 ids, got %d", len(ids))
	}
}

func TestGet_Snapshot(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/m1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id":"m1","question":"Q","yesPrice":"0.40","volume24hr":1500,"active":true,"closed":false}`))
	})

	snap, err := client.Get(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if snap.ID != "m1" {
		t.Errorf("Expected m1, got %s", snap.ID)
	}
	if !snap.Volume24h.Present {
		t.Error("Volume should be present")
	}
	if snap.FetchedAt.IsZero() {
		t.Error("FetchedAt should be set")
	}
}

func TestGet_MalformedVolumeFails(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"m1","question":"Q","yesPrice":0.40,"volume24hr":"n/a","active":true,"closed":false}`))
	})

	_, err := client.Get(context.Background(), "m1")
	if err == nil {
		t.Fatal("Malformed volume should fail the fetch")
	}
}

func TestGet_NotFound(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.Get(context.Background(), "missing")
	if !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("Expected ErrMarketNotFound, got %v", err)
	}
}

func TestGet_ServerError(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Get(context.Background(), "m1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", apiErr.StatusCode)
	}
}

func TestFetch_ReportsUnknownMarket(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/markets/m1" {
			w.Write([]byte(`{"id":"m1","question":"Q","active":true,"closed":false}`))
			return
		}
		http.NotFound(w, r)
	})

	_, err := client.Fetch(context.Background(), []string{"m1", "missing"})
	if !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("Unknown market must surface as an error, got %v", err)
	}
}

func TestNormalizeQuestion(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Will X win?", "will x win"},
		{"  Will   X  win ", "will x win"},
		{"Wíll X wîn?", "will x win"},
		{"WILL X WIN!!!", "will x win"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeQuestion(tc.in); got != tc.want {
			t.Errorf("NormalizeQuestion(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
