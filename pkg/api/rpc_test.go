package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/internal/kernel"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

func newTestRegistry(t *testing.T) *RPCRegistry {
	t.Helper()
	cfg := config.NewDefault()
	cfg.CAS.PassthroughRoot = t.TempDir()
	cfg.MetadataStore.Backend = "memory"
	cfg.ReBAC.OpenAccessFallback = true
	cfg.Events.Topology = "same_box"

	k, err := kernel.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	t.Cleanup(func() { _ = k.Close() })
	return NewRPCRegistry(k)
}

func postRPC(t *testing.T, r *RPCRegistry, method string, params interface{}) rpcResponse {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	body, err := json.Marshal(rpcRequest{
		Method:  method,
		Subject: types.Subject{ID: "alice", Zone: "default"},
		Params:  paramsJSON,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, rec.Body.String())
	}
	return resp
}

func TestRPCRegistry_WriteThenRead(t *testing.T) {
	r := newTestRegistry(t)

	writeResp := postRPC(t, r, "write", map[string]interface{}{
		"path": "/a/b.txt",
		"data": []byte("hello"),
	})
	if writeResp.Error != "" {
		t.Fatalf("write failed: %s", writeResp.Error)
	}

	readResp := postRPC(t, r, "read", map[string]interface{}{
		"path": "/a/b.txt",
	})
	if readResp.Error != "" {
		t.Fatalf("read failed: %s", readResp.Error)
	}
}

func TestRPCRegistry_UnknownMethod(t *testing.T) {
	r := newTestRegistry(t)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte(`{"method":"bogus","params":{}}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown method, got %d", rec.Code)
	}
}

func TestRPCRegistry_RejectsNonPOST(t *testing.T) {
	r := newTestRegistry(t)

	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}
}
