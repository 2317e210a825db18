// Package wire carries the JSON request/response shapes exchanged
// between chordring peers over HTTP, as named in the external
// interface table.
package wire

// NodeRef is the lightweight value carried for a remote peer: just
// enough to route to it and compare it in the ring order. It is never
// a live handle.
type NodeRef struct {
	NodeID      int    `json:"node_id"`
	NodeAddress string `json:"node_address"`
}

// NotifyRequest is the body of POST /notify.
type NotifyRequest struct {
	Node NodeRef `json:"node"`
}

// FindSuccessorRequest is the body of POST /find_successor.
type FindSuccessorRequest struct {
	HashedKey int `json:"hashed_key"`
}

// UpdateSuccessorRequest is the body of POST /update_successor.
type UpdateSuccessorRequest struct {
	Successor string `json:"successor"`
}

// UpdatePredecessorRequest is the body of POST /update_predecessor.
// Predecessor is nil when the sender wants the receiver to clear it.
type UpdatePredecessorRequest struct {
	Predecessor *string `json:"predecessor"`
}

// StatusResponse is the generic {"status": "..."} envelope used by
// notify, update_successor, update_predecessor and sim-recover.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// LeaveResponse is the 200 body of POST /leave.
type LeaveResponse struct {
	Message string `json:"message"`
}

// NodeInfo is the 200 body of GET /node-info.
type NodeInfo struct {
	NodeAddress string   `json:"node_address"`
	NodeHash    int      `json:"node_hash"`
	Others      []string `json:"others"`
	Predecessor *string  `json:"predecessor"`
	Successor   string   `json:"successor"`
}
