package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestResolveByAccessKey(t *testing.T) {
	t.Parallel()

	client := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/inner/user/getInvokeUser" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("accessKey"); got != "ak-1" {
			t.Errorf("accessKey = %s", got)
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"id":17,"accessKey":"ak-1","secretKey":"sk-1"}}`))
	})

	caller, err := client.ResolveByAccessKey(context.Background(), "ak-1")
	if err != nil {
		t.Fatalf("ResolveByAccessKey() error = %v", err)
	}
	if caller == nil || caller.ID != 17 || caller.SecretKey != "sk-1" {
		t.Fatalf("ResolveByAccessKey() = %+v", caller)
	}
}

func TestResolveByAccessKeyMiss(t *testing.T) {
	t.Parallel()

	client := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":null}`))
	})

	caller, err := client.ResolveByAccessKey(context.Background(), "ak-unknown")
	if err != nil {
		t.Fatalf("ResolveByAccessKey() error = %v", err)
	}
	if caller != nil {
		t.Fatalf("ResolveByAccessKey() = %+v, want nil for a miss", caller)
	}
}

func TestResolveInterface(t *testing.T) {
	t.Parallel()

	client := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/inner/interfaceInfo/getInterfaceInfo" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("url") != "http://localhost:8101/third-party/name" || q.Get("method") != "POST" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"id":42,"method":"POST","url":"http://localhost:8101/third-party/name"}}`))
	})

	resource, err := client.Resolve(context.Background(), "http://localhost:8101/third-party/name", "POST")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resource == nil || resource.ID != 42 {
		t.Fatalf("Resolve() = %+v", resource)
	}
}

func TestBackendErrorsSurface(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http 500", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"envelope error code", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":40300,"message":"no auth"}`))
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := testBackend(t, tc.handler)
			if _, err := client.ResolveByAccessKey(context.Background(), "ak-1"); err == nil {
				t.Fatal("backend failure must surface as an error, not a silent miss")
			}
		})
	}
}

func TestContextTimeoutBoundsCall(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	client := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	if _, err := client.ResolveBySessionID(ctx, "sess-1"); err == nil {
		t.Fatal("a canceled context must abort the collaborator call")
	}
}
