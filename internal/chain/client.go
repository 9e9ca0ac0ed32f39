package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
)

const (
	latestBlockPath = "/blocks/latest"
	txByHashPath    = "/cosmos/tx/v1beta1/txs/"
	wsEndpoint      = "/websocket"
)

// ErrNotFound is returned when the node does not (yet) know the requested object.
var ErrNotFound = errors.New("not found")

// HTTPError is a non-2xx answer from the REST endpoint.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

// Client is the node query surface the ingestion pipeline depends on.
type Client interface {
	LatestHeight(ctx context.Context) (int64, error)
	FetchBlock(ctx context.Context, height int64) (*RawBlock, error)
	FetchTxResult(ctx context.Context, hash string) (*TxResult, error)
}

// HTTPClient implements Client over CometBFT RPC (blocks) and the Cosmos
// REST API (latest height, tx results). It holds no state besides connections.
type HTTPClient struct {
	rpc    *rpchttp.HTTP
	apiURL string
	http   *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewClient(rpcURL, apiURL string, timeout time.Duration) (*HTTPClient, error) {
	// rpchttp.New takes RPC base URL and WS path separately
	rpc, err := rpchttp.New(rpcURL, wsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}
	return &HTTPClient{
		rpc:    rpc,
		apiURL: strings.TrimSuffix(apiURL, "/"),
		http:   &http.Client{Timeout: timeout},
	}, nil
}

// RPC exposes the underlying CometBFT client for collaborators such as the
// moniker resolver.
func (c *HTTPClient) RPC() *rpchttp.HTTP {
	return c.rpc
}

func (c *HTTPClient) LatestHeight(ctx context.Context) (int64, error) {
	var payload latestBlockResponse
	if err := c.getJSON(ctx, c.apiURL+latestBlockPath, &payload); err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	if payload.Block.Header.Height <= 0 {
		return 0, fmt.Errorf("latest block: invalid height %d", payload.Block.Header.Height)
	}
	return payload.Block.Header.Height, nil
}

func (c *HTTPClient) FetchBlock(ctx context.Context, height int64) (*RawBlock, error) {
	h := height
	res, err := c.rpc.Block(ctx, &h)
	if err != nil {
		return nil, fmt.Errorf("fetch block %d: %w", height, err)
	}
	blk, err := rawBlockFromResult(res)
	if err != nil {
		return nil, fmt.Errorf("fetch block %d: %w", height, err)
	}
	return blk, nil
}

func (c *HTTPClient) FetchTxResult(ctx context.Context, hash string) (*TxResult, error) {
	var payload getTxResponse
	if err := c.getJSON(ctx, c.apiURL+txByHashPath+hash, &payload); err != nil {
		return nil, fmt.Errorf("fetch tx %s: %w", hash, err)
	}
	res := payload.toResult()
	if res.Hash == "" {
		res.Hash = hash
	}
	return res, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func rawBlockFromResult(res *rpccoretypes.ResultBlock) (*RawBlock, error) {
	if res == nil || res.Block == nil {
		return nil, ErrNotFound
	}
	blk := res.Block
	hash := res.BlockID.Hash
	if len(hash) == 0 {
		hash = blk.Hash()
	}
	raw := &RawBlock{
		Height:          blk.Header.Height,
		Hash:            fmt.Sprintf("%X", hash),
		ChainID:         blk.Header.ChainID,
		Time:            blk.Header.Time,
		ProposerAddress: fmt.Sprintf("%X", blk.Header.ProposerAddress),
		Txs:             make([][]byte, 0, len(blk.Data.Txs)),
	}
	if blk.LastCommit != nil {
		raw.Round = blk.LastCommit.Round
	}
	for _, tx := range blk.Data.Txs {
		raw.Txs = append(raw.Txs, []byte(tx))
	}
	return raw, nil
}
