package polcloud

import (
	"context"
	"log"
	"net/http"
)

// Pool is a set of compute nodes jobs are submitted to.
type Pool struct {
	client *Client
	token  string

	ID string
}

// NewPool wraps an existing pool.
func (c *Client) NewPool(id, token string) *Pool {
	return &Pool{client: c, token: token, ID: id}
}

// CreatePool provisions a pool of size nodes.
func (c *Client) CreatePool(ctx context.Context, size int, token string) (*Pool, error) {
	out, err := c.doJSON(ctx, http.MethodPost, token, &createPoolPayload{Size: size}, poolsPath)
	if err != nil {
		log.Printf("create pool failed: %s", err)
		return nil, err
	}
	return c.NewPool(identifier(out), token), nil
}

// GetInfo fetches the pool metadata.
func (p *Pool) GetInfo(ctx context.Context) (PoolInfo, error) {
	var info PoolInfo
	if err := p.client.getJSON(ctx, p.token, &info, poolsPath, p.ID); err != nil {
		log.Printf("get pool info failed: %s", err)
		return nil, err
	}
	return info, nil
}

func (p *Pool) IsReady(ctx context.Context) (bool, error) {
	info, err := p.GetInfo(ctx)
	if err != nil {
		return false, err
	}
	ready, err := info.Ready()
	if err != nil {
		log.Printf("pool %s: %s", p.ID, err)
		return false, err
	}
	return ready, nil
}

// Delete requests the pool teardown.
func (p *Pool) Delete(ctx context.Context) error {
	_, err := p.client.do(ctx, request{
		method: http.MethodDelete,
		token:  p.token,
		path:   []string{poolsPath, p.ID},
	})
	if err != nil {
		log.Printf("delete pool failed: %s", err)
	}
	return err
}
