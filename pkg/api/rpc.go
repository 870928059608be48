package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nexi-lab/nexuskernel/internal/kernel"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// RPCMethod is one entry in the explicit method registry: a request
// envelope in, a response value (or error) out. Per spec §9's "explicit
// RPC registry, no reflection" design note, every method is registered
// by name rather than discovered by introspecting the Kernel's methods.
type RPCMethod func(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error)

// RPCRegistry dispatches named RPC calls to a Kernel over HTTP, matching
// the teacher's health/status handler shape (one http.Handler per
// concern) rather than a generic reflection-based RPC framework.
type RPCRegistry struct {
	kernel  *kernel.Kernel
	methods map[string]RPCMethod
}

// NewRPCRegistry builds the registry with the fixed set of kernel
// operations the façade exposes (spec §4.7).
func NewRPCRegistry(k *kernel.Kernel) *RPCRegistry {
	r := &RPCRegistry{
		kernel:  k,
		methods: make(map[string]RPCMethod),
	}
	r.methods["read"] = rpcRead
	r.methods["write"] = rpcWrite
	r.methods["delete"] = rpcDelete
	r.methods["rename"] = rpcRename
	r.methods["list"] = rpcList
	r.methods["glob"] = rpcGlob
	r.methods["stat"] = rpcStat
	r.methods["get_version"] = rpcGetVersion
	r.methods["list_versions"] = rpcListVersions
	r.methods["rollback"] = rpcRollback
	return r
}

// rpcRequest is the JSON-RPC-like envelope: a method name, a caller
// subject, and method-specific params.
type rpcRequest struct {
	Method  string          `json:"method"`
	Subject types.Subject   `json:"subject"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler so RPCRegistry can be mounted
// directly on a Server's mux at a single "/rpc" path.
func (r *RPCRegistry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rpcReq rpcRequest
	if err := json.NewDecoder(req.Body).Decode(&rpcReq); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(rpcResponse{Error: "invalid request: " + err.Error()})
		return
	}

	method, ok := r.methods[rpcReq.Method]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(rpcResponse{Error: "unknown method: " + rpcReq.Method})
		return
	}

	result, err := method(req.Context(), r.kernel, rpcReq.Subject, rpcReq.Params)
	if err != nil {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(rpcResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{Result: result})
}

func rpcRead(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Path           types.VirtualPath `json:"path"`
		ReturnMetadata bool              `json:"return_metadata"`
		QueryID        string            `json:"query_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	data, meta, err := k.Read(ctx, subject, p.Path, kernel.ReadOptions{ReturnMetadata: p.ReturnMetadata, QueryID: p.QueryID})
	if err != nil {
		return nil, err
	}
	return struct {
		Data     []byte              `json:"data"`
		Metadata *types.FileMetadata `json:"metadata,omitempty"`
	}{Data: data, Metadata: meta}, nil
}

func rpcWrite(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Path        types.VirtualPath `json:"path"`
		Data        []byte            `json:"data"`
		IfMatch     string            `json:"if_match"`
		IfNoneMatch string            `json:"if_none_match"`
		Force       bool              `json:"force"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return k.Write(ctx, subject, p.Path, p.Data, kernel.WriteOptions{
		IfMatch:     p.IfMatch,
		IfNoneMatch: p.IfNoneMatch,
		Force:       p.Force,
	})
}

func rpcDelete(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Path    types.VirtualPath `json:"path"`
		IfMatch string            `json:"if_match"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return nil, k.Delete(ctx, subject, p.Path, kernel.DeleteOptions{IfMatch: p.IfMatch})
}

func rpcRename(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		OldPath types.VirtualPath `json:"old_path"`
		NewPath types.VirtualPath `json:"new_path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return k.Rename(ctx, subject, p.OldPath, p.NewPath)
}

func rpcList(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Dir       types.VirtualPath `json:"dir"`
		Recursive bool              `json:"recursive"`
		QueryID   string            `json:"query_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return k.List(ctx, subject, p.Dir, kernel.ListOptions{Recursive: p.Recursive, QueryID: p.QueryID})
}

func rpcGlob(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Dir     types.VirtualPath `json:"dir"`
		Pattern string            `json:"pattern"`
		QueryID string            `json:"query_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return k.Glob(ctx, subject, p.Dir, p.Pattern, kernel.GlobOptions{QueryID: p.QueryID})
}

func rpcStat(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Path types.VirtualPath `json:"path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return k.Stat(ctx, subject, p.Path)
}

func rpcGetVersion(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Path    types.VirtualPath `json:"path"`
		Version int64             `json:"version"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	data, rec, err := k.GetVersion(ctx, subject, p.Path, p.Version)
	if err != nil {
		return nil, err
	}
	return struct {
		Data    []byte              `json:"data"`
		Version types.VersionRecord `json:"version"`
	}{Data: data, Version: *rec}, nil
}

func rpcListVersions(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Path types.VirtualPath `json:"path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return k.ListVersions(ctx, subject, p.Path)
}

func rpcRollback(ctx context.Context, k *kernel.Kernel, subject types.Subject, params json.RawMessage) (interface{}, error) {
	var p struct {
		Path    types.VirtualPath `json:"path"`
		Version int64             `json:"version"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return k.Rollback(ctx, subject, p.Path, p.Version)
}
