package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/distsys-lab/chordring/internal/wire"
)

// Outbound RPC deadlines, matching the concurrency model's per-purpose
// split exactly (rpcTimeout also covers health probes; storageTimeout
// is shorter because a client request is blocked on the forward).
const (
	rpcTimeout     = 10 * time.Second
	storageTimeout = 8 * time.Second
)

// Client implements ring.Transport over HTTP. It keeps one *http.Client
// per purpose, the teacher's fastClient/slowClient split, but applies
// the deadline per call via context.WithTimeout rather than the
// client-wide Timeout field, so a caller's own context can cut it
// shorter without a second client.
type Client struct {
	rpc     *http.Client
	storage *http.Client
	log     *zap.SugaredLogger
}

// NewClient builds an HTTP-backed transport for peer-to-peer RPC.
func NewClient(log *zap.SugaredLogger) *Client {
	return &Client{
		rpc:     &http.Client{},
		storage: &http.Client{},
		log:     log,
	}
}

// Ping checks liveness. A non-200 (503, crashed) is a valid "not
// alive" answer, not a transport error.
func (c *Client) Ping(ctx context.Context, addr string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/ping", nil)
	if err != nil {
		return false, fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.rpc.Do(req)
	if err != nil {
		return false, fmt.Errorf("ping %s: %w", addr, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// GetPredecessor asks addr for its predecessor. A 200 with an empty
// JSON object means addr reports no predecessor (nil, nil).
func (c *Client) GetPredecessor(ctx context.Context, addr string) (*wire.NodeRef, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/predecessor", nil)
	if err != nil {
		return nil, fmt.Errorf("build predecessor request: %w", err)
	}
	resp, err := c.rpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get predecessor from %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get predecessor from %s: status %d", addr, resp.StatusCode)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode predecessor response from %s: %w", addr, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode predecessor response: %w", err)
	}
	var ref wire.NodeRef
	if err := json.Unmarshal(buf, &ref); err != nil {
		return nil, fmt.Errorf("decode predecessor fields: %w", err)
	}
	return &ref, nil
}

// Notify tells addr that candidate might be its new predecessor.
func (c *Client) Notify(ctx context.Context, addr string, candidate wire.NodeRef) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	payload, err := json.Marshal(wire.NotifyRequest{Node: candidate})
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/notify", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.rpc.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify %s: status %d", addr, resp.StatusCode)
	}
	return nil
}

// FindSuccessor asks addr to resolve keyID, continuing the search remotely.
func (c *Client) FindSuccessor(ctx context.Context, addr string, keyID int) (wire.NodeRef, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	payload, err := json.Marshal(wire.FindSuccessorRequest{HashedKey: keyID})
	if err != nil {
		return wire.NodeRef{}, fmt.Errorf("marshal find_successor payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/find_successor", bytes.NewReader(payload))
	if err != nil {
		return wire.NodeRef{}, fmt.Errorf("build find_successor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.rpc.Do(req)
	if err != nil {
		return wire.NodeRef{}, fmt.Errorf("find_successor on %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return wire.NodeRef{}, fmt.Errorf("find_successor on %s: status %d", addr, resp.StatusCode)
	}
	var ref wire.NodeRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return wire.NodeRef{}, fmt.Errorf("decode find_successor response: %w", err)
	}
	return ref, nil
}

// UpdateSuccessor instructs addr to adopt successorAddr as its successor.
func (c *Client) UpdateSuccessor(ctx context.Context, addr string, successorAddr string) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	payload, err := json.Marshal(wire.UpdateSuccessorRequest{Successor: successorAddr})
	if err != nil {
		return fmt.Errorf("marshal update_successor payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/update_successor", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update_successor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.rpc.Do(req)
	if err != nil {
		return fmt.Errorf("update_successor on %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update_successor on %s: status %d", addr, resp.StatusCode)
	}
	return nil
}

// UpdatePredecessor instructs addr to adopt predecessorAddr, or clear
// it when nil.
func (c *Client) UpdatePredecessor(ctx context.Context, addr string, predecessorAddr *string) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	payload, err := json.Marshal(wire.UpdatePredecessorRequest{Predecessor: predecessorAddr})
	if err != nil {
		return fmt.Errorf("marshal update_predecessor payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/update_predecessor", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update_predecessor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.rpc.Do(req)
	if err != nil {
		return fmt.Errorf("update_predecessor on %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update_predecessor on %s: status %d", addr, resp.StatusCode)
	}
	return nil
}

// NodeInfo fetches addr's node_hash. A 503 (crashed or left) surfaces
// as an error per the external interface table.
func (c *Client) NodeInfo(ctx context.Context, addr string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/node-info", nil)
	if err != nil {
		return 0, fmt.Errorf("build node-info request: %w", err)
	}
	resp, err := c.rpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("node-info on %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("node-info on %s: status %d", addr, resp.StatusCode)
	}
	var info wire.NodeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, fmt.Errorf("decode node-info response: %w", err)
	}
	return info.NodeHash, nil
}

// ForwardGet performs the one-hop storage GET forward used when this
// peer is not the key's owner, returning the owner's status and body
// verbatim so the caller can relay them unchanged.
func (c *Client) ForwardGet(ctx context.Context, addr, key string) (status int, body []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	return c.forwardStorage(ctx, http.MethodGet, addr, key, nil)
}

// ForwardPut performs the one-hop storage PUT forward, sending value
// as the raw request body.
func (c *Client) ForwardPut(ctx context.Context, addr, key string, value []byte) (status int, body []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	return c.forwardStorage(ctx, http.MethodPut, addr, key, value)
}

func (c *Client) forwardStorage(ctx context.Context, method, addr, key string, value []byte) (int, []byte, error) {
	url := "http://" + addr + "/storage/" + key

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(value))
	if err != nil {
		return 0, nil, fmt.Errorf("build storage forward request: %w", err)
	}
	if method == http.MethodPut {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	resp, err := c.storage.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("forward %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read forwarded response body: %w", err)
	}
	return resp.StatusCode, buf.Bytes(), nil
}
