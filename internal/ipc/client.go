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

// Start requests the daemon to begin scheduling and processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Hackercast.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Hackercast.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Hackercast.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns daemon log lines starting at the requested offset.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Hackercast.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunBatch triggers a pipeline run.
func (c *Client) RunBatch(req RunBatchRequest) (*RunBatchResponse, error) {
	var resp RunBatchResponse
	if err := c.client.Call("Hackercast.RunBatch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns queue items, optionally filtered by batch and stages.
func (c *Client) QueueList(batch string, stages []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Batch: batch, Stages: stages}
	if err := c.client.Call("Hackercast.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe returns details for a single queue item.
func (c *Client) QueueDescribe(id int64) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	req := QueueDescribeRequest{ID: id}
	if err := c.client.Call("Hackercast.QueueDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRemove deletes specific queue items by row ID.
func (c *Client) QueueRemove(ids []int64) (*QueueRemoveResponse, error) {
	var resp QueueRemoveResponse
	if err := c.client.Call("Hackercast.QueueRemove", QueueRemoveRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes all items from the queue.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.client.Call("Hackercast.QueueClear", QueueClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearTerminal removes published and dead-lettered items.
func (c *Client) QueueClearTerminal() (*QueueClearTerminalResponse, error) {
	var resp QueueClearTerminalResponse
	if err := c.client.Call("Hackercast.QueueClearTerminal", QueueClearTerminalRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Hackercast.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Hackercast.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchList returns recent batches, newest first.
func (c *Client) BatchList(limit int) (*BatchListResponse, error) {
	var resp BatchListResponse
	req := BatchListRequest{Limit: limit}
	if err := c.client.Call("Hackercast.BatchList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeadLetterList returns the dead-letter log for one batch.
func (c *Client) DeadLetterList(batch string) (*DeadLetterListResponse, error) {
	var resp DeadLetterListResponse
	req := DeadLetterListRequest{Batch: batch}
	if err := c.client.Call("Hackercast.DeadLetterList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Replay resets one dead-lettered item for another try.
func (c *Client) Replay(batch string, itemID int64) (*ReplayResponse, error) {
	var resp ReplayResponse
	req := ReplayRequest{Batch: batch, ItemID: itemID}
	if err := c.client.Call("Hackercast.Replay", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FeedWrite regenerates the RSS feed from the store.
func (c *Client) FeedWrite() (*FeedWriteResponse, error) {
	var resp FeedWriteResponse
	if err := c.client.Call("Hackercast.FeedWrite", FeedWriteRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Hackercast.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
