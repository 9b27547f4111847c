package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Ferry.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListArchives fetches every tracked archive.
func (c *Client) ListArchives() (*ArchiveListResponse, error) {
	var resp ArchiveListResponse
	if err := c.client.Call("Ferry.ListArchives", ArchiveListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FailedItems fetches items parked in the failed phase.
func (c *Client) FailedItems() (*FailedItemsResponse, error) {
	var resp FailedItemsResponse
	if err := c.client.Call("Ferry.FailedItems", FailedItemsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry re-admits failed items, all of them when ids is empty.
func (c *Client) Retry(ids []int64) (*RetryResponse, error) {
	var resp RetryResponse
	if err := c.client.Call("Ferry.Retry", RetryRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reacquire resets a corrupted or failed archive for re-download.
func (c *Client) Reacquire(archiveID string) error {
	var resp ReacquireResponse
	return c.client.Call("Ferry.Reacquire", ReacquireRequest{ArchiveID: archiveID}, &resp)
}

// Pause halts cleanup until resumed.
func (c *Client) Pause(reason string) error {
	var resp PauseResponse
	return c.client.Call("Ferry.Pause", PauseRequest{Reason: reason}, &resp)
}

// Resume lifts an operator pause.
func (c *Client) Resume() error {
	var resp ResumeResponse
	return c.client.Call("Ferry.Resume", ResumeRequest{}, &resp)
}

// ResetStuck rolls in-flight units back to their committed phases.
func (c *Client) ResetStuck() (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.client.Call("Ferry.ResetStuck", ResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to halt processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Ferry.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
