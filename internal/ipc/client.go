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

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Imxup.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Imxup.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Imxup.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue adds a gallery folder to the pipeline.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.client.Call("Imxup.Enqueue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns galleries optionally filtered by states.
func (c *Client) QueueList(states []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{States: states}
	if err := c.client.Call("Imxup.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe returns details for a single gallery.
func (c *Client) QueueDescribe(id int64) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	req := QueueDescribeRequest{ID: id}
	if err := c.client.Call("Imxup.QueueDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause stops a gallery's upload cooperatively.
func (c *Client) Pause(id int64) (*PauseResponse, error) {
	var resp PauseResponse
	if err := c.client.Call("Imxup.Pause", PauseRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume returns a paused gallery to the queue.
func (c *Client) Resume(id int64) (*ResumeResponse, error) {
	var resp ResumeResponse
	if err := c.client.Call("Imxup.Resume", ResumeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRemove removes specific galleries by id.
func (c *Client) QueueRemove(ids []int64) (*QueueRemoveResponse, error) {
	var resp QueueRemoveResponse
	req := QueueRemoveRequest{IDs: ids}
	if err := c.client.Call("Imxup.QueueRemove", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes all galleries from the queue.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.client.Call("Imxup.QueueClear", QueueClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearCompleted removes only completed galleries from the queue.
func (c *Client) QueueClearCompleted() (*QueueClearCompletedResponse, error) {
	var resp QueueClearCompletedResponse
	if err := c.client.Call("Imxup.QueueClearCompleted", QueueClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearFailed removes failed galleries from the queue.
func (c *Client) QueueClearFailed() (*QueueClearFailedResponse, error) {
	var resp QueueClearFailedResponse
	if err := c.client.Call("Imxup.QueueClearFailed", QueueClearFailedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueReset returns galleries stranded in uploading to the queue.
func (c *Client) QueueReset() (*QueueResetResponse, error) {
	var resp QueueResetResponse
	if err := c.client.Call("Imxup.QueueReset", QueueResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReEnqueue splits an incomplete gallery's remainder into a fresh record.
func (c *Client) ReEnqueue(id int64) (*ReEnqueueResponse, error) {
	var resp ReEnqueueResponse
	if err := c.client.Call("Imxup.ReEnqueue", ReEnqueueRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Append enqueues the files added to a finished gallery's folder.
func (c *Client) Append(id int64) (*AppendResponse, error) {
	var resp AppendResponse
	if err := c.client.Call("Imxup.Append", AppendRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail reads daemon log lines starting at the given offset.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Imxup.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rename queues a gallery rename against the primary host.
func (c *Client) Rename(id int64, newName string) (*RenameResponse, error) {
	var resp RenameResponse
	req := RenameRequest{ID: id, NewName: newName}
	if err := c.client.Call("Imxup.Rename", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
