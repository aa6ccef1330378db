// Package statusserver implements the read-only HTTP status endpoint:
// per-device hashrate snapshots for the user and dev managers, exposed
// as both a gorilla/rpc JSON-RPC service and a plain HTTP handler,
// grounded on miner/miner.go's rpc.NewServer/mux wiring. It reports no
// current-pool or share-acceptance data.
package statusserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/AGPFMiner/argonminer/internal/hashmanager"
	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	rpcjson "github.com/gorilla/rpc/json"
)

// StatsSource is whatever can report the current snapshot, implemented
// by manager.Manager.
type StatsSource interface {
	PrintStats() []hashmanager.HashrateSnapshot
}

// Status is the RPC service registered under "status".
type Status struct {
	user StatsSource
	dev  StatsSource
}

// StatusArgs is unused but required by the gorilla/rpc method
// signature.
type StatusArgs struct{}

// StatusReply is the current user/dev hashrate snapshot pair.
type StatusReply struct {
	User []hashmanager.HashrateSnapshot `json:"user"`
	Dev  []hashmanager.HashrateSnapshot `json:"dev,omitempty"`
	Time int64                          `json:"time"`
}

// GetStatus is the RPC method, callable as "status.GetStatus".
func (s *Status) GetStatus(r *http.Request, args *StatusArgs, reply *StatusReply) error {
	reply.User = s.user.PrintStats()
	if s.dev != nil {
		reply.Dev = s.dev.PrintStats()
	}
	reply.Time = time.Now().Unix()
	return nil
}

// NewRouter builds the mux.Router serving both the JSON-RPC endpoint at
// /rpc and a plain-JSON status handler at /status.
func NewRouter(user, dev StatsSource) *mux.Router {
	status := &Status{user: user, dev: dev}

	server := rpc.NewServer()
	server.RegisterCodec(rpcjson.NewCodec(), "application/json")
	server.RegisterCodec(rpcjson.NewCodec(), "application/json;charset=UTF-8")
	server.RegisterService(status, "status")

	r := mux.NewRouter()
	r.Handle("/rpc", server)
	r.HandleFunc("/status", status.serveHTTPStatus)

	return r
}

func (s *Status) serveHTTPStatus(w http.ResponseWriter, r *http.Request) {
	reply := StatusReply{
		User: s.user.PrintStats(),
		Time: time.Now().Unix(),
	}
	if s.dev != nil {
		reply.Dev = s.dev.PrintStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}

// ListenAndServe starts the status HTTP server on addr, blocking until
// it errors out.
func ListenAndServe(addr string, user, dev StatsSource) error {
	return http.ListenAndServe(addr, NewRouter(user, dev))
}
