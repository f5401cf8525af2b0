package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"traffic_counts/pkg/edgeid"
	"traffic_counts/pkg/flowtree"
	"traffic_counts/pkg/session"
)

var _ session.Fetcher = (*Client)(nil)

const treeJSON = `{"id":20,"count":42,"origins":{"5":{"count":3,"edges":["7"]},"7":{"count":2}},"destinations":{"30":{"count":4}}}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /trees/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "20":
			if r.Header.Get("X-API-Key") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(treeJSON))
		case "21":
			w.Write([]byte(`{"id":21,"count":"n/a"}`))
		case "22":
			w.Write([]byte(`<html>`))
		case "23":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("GET /api/v1/segments/nearest", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") != "1.3" || r.URL.Query().Get("lng") != "103.8" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"segment_id":5,"edge_id":10,"distance_meters":12.5}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTree(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL+"/", WithKey("secret"))

	rec, err := c.FetchTree(context.Background(), 20)
	if err != nil {
		t.Fatalf("FetchTree: %v", err)
	}
	tree, err := flowtree.Decode(rec)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tree.Root != 20 || tree.RootCount != 42 {
		t.Errorf("root = %d/%d, want 20/42", tree.Root, tree.RootCount)
	}
	if got := tree.Origins[5].Next; len(got) != 1 || got[0] != 7 {
		t.Errorf("origins[5].Next = %v, want [7]", got)
	}
	if len(tree.Destinations) != 1 {
		t.Errorf("len(destinations) = %d, want 1", len(tree.Destinations))
	}
}

func TestFetchTreeErrors(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, WithKey("secret"))

	tests := []struct {
		name    string
		id      edgeid.DirectedEdgeID
		wantErr error
	}{
		{name: "not found", id: 99, wantErr: ErrNotFound},
		{name: "server error", id: 23, wantErr: ErrTransport},
		{name: "not json", id: 22, wantErr: flowtree.ErrMalformedTreeData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.FetchTree(context.Background(), tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A 404 is a transport failure too.
	if _, err := c.FetchTree(context.Background(), 99); !errors.Is(err, ErrTransport) {
		t.Errorf("404 err = %v, want ErrTransport", err)
	}
}

func TestFetchTreeUnreachable(t *testing.T) {
	srv := newTestServer(t)
	url := srv.URL
	srv.Close()

	_, err := New(url).FetchTree(context.Background(), 20)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
}

func TestSessionOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	rec := session.NewRecorder()
	s := session.New(New(srv.URL, WithKey("secret")), rec)

	if err := s.Select(context.Background(), 20); err != nil {
		t.Fatalf("Select(20): %v", err)
	}
	if !s.Hover(5) {
		t.Fatal("Hover(5) = false, want true")
	}
	if got := s.Route(); len(got) != 2 {
		t.Errorf("Route() = %v, want [5 7]", got)
	}

	// A malformed tree leaves the loaded one in place.
	err := s.Select(context.Background(), 21)
	if !errors.Is(err, flowtree.ErrMalformedTreeData) {
		t.Errorf("Select(21) err = %v, want ErrMalformedTreeData", err)
	}
	if s.Tree().Root != 20 {
		t.Errorf("Tree().Root = %d, want 20", s.Tree().Root)
	}
}

func TestNearest(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)

	snap, err := c.Nearest(context.Background(), 1.3, 103.8)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if snap.SegmentID != 5 || snap.EdgeID != 10 || snap.DistanceMeters != 12.5 {
		t.Errorf("Nearest = %+v", snap)
	}
}

func TestURLs(t *testing.T) {
	c := New("http://counts.example/")
	if got := c.MVTURL(); got != "http://counts.example/tiles/mvt.json" {
		t.Errorf("MVTURL() = %q", got)
	}
	if got := c.TreeURL(edgeid.FromSegment(5, false)); got != "http://counts.example/trees/11" {
		t.Errorf("TreeURL() = %q", got)
	}
}
