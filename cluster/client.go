// Package cluster implements the node-to-node collaborators: the HTTP
// peer client, the propagated-file cache, the distribution coordinator,
// the distributed query coordinator, and the heartbeat sender. Every
// peer call here is issued with no table lock held and is bounded by a
// caller-supplied context.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shardframe/shardframe/errs"
	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
)

// PeerClient is everything one node needs to call another node's HTTP
// binding. It is an interface so the coordinators can be tested against a
// fake without a real listener.
type PeerClient interface {
	Heartbeat(ctx context.Context, target peer.Info, req wire.HeartbeatRequest) error
	Replicate(ctx context.Context, target peer.Info, req wire.ReplicateRequest) error
	HasFile(ctx context.Context, target peer.Info, key string) (bool, error)
	PushFile(ctx context.Context, target peer.Info, key string, body io.Reader, size int64) error
	LoadRange(ctx context.Context, target peer.Info, table string, req wire.LoadRangeRequest) (wire.LoadRangeResponse, error)
	ForwardQuery(ctx context.Context, target peer.Info, q wire.Query) (wire.Result, error)
}

// HTTPClient is the production PeerClient, issuing plain JSON/HTTP calls
// against the routes in internal/api.
type HTTPClient struct {
	Client *http.Client
}

// NewHTTPClient constructs an HTTPClient. A nil client argument uses
// http.DefaultClient's transport with no client-level timeout — callers
// are expected to bound every call with ctx instead, since the timeout
// varies per call site (heartbeat vs. a multi-megabyte file push).
func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{Client: client}
}

func baseURL(target peer.Info) string {
	return fmt.Sprintf("http://%s:%d", target.Host, target.Port)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errs.Peer("failed to encode request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errs.Peer("failed to build request", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return errs.Peer("peer request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errs.Peer(fmt.Sprintf("peer returned status %d", resp.StatusCode), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Peer("failed to decode peer response", err)
	}
	return nil
}

func (c *HTTPClient) Heartbeat(ctx context.Context, target peer.Info, req wire.HeartbeatRequest) error {
	return c.doJSON(ctx, http.MethodPost, baseURL(target)+"/peers/heartbeat", req, nil)
}

func (c *HTTPClient) Replicate(ctx context.Context, target peer.Info, req wire.ReplicateRequest) error {
	return c.doJSON(ctx, http.MethodPost, baseURL(target)+"/peers/replicate", req, nil)
}

func (c *HTTPClient) HasFile(ctx context.Context, target peer.Info, key string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL(target)+"/peers/files/"+key, nil)
	if err != nil {
		return false, errs.Peer("failed to build request", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return false, errs.Peer("peer request failed", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (c *HTTPClient) PushFile(ctx context.Context, target peer.Info, key string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(target)+"/peers/files/"+key, body)
	if err != nil {
		return errs.Peer("failed to build request", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.Client.Do(req)
	if err != nil {
		return errs.Peer("peer request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errs.Peer(fmt.Sprintf("peer returned status %d pushing file", resp.StatusCode), nil)
	}
	return nil
}

func (c *HTTPClient) LoadRange(ctx context.Context, target peer.Info, table string, req wire.LoadRangeRequest) (wire.LoadRangeResponse, error) {
	var out wire.LoadRangeResponse
	url := fmt.Sprintf("%s/tables/%s/load-range", baseURL(target), table)
	err := c.doJSON(ctx, http.MethodPost, url, req, &out)
	return out, err
}

func (c *HTTPClient) ForwardQuery(ctx context.Context, target peer.Info, q wire.Query) (wire.Result, error) {
	var out wire.Result
	err := c.doJSON(ctx, http.MethodPost, baseURL(target)+"/query", q, &out)
	return out, err
}
