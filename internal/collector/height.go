package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chain-indexer/internal/chain"
	"chain-indexer/internal/decoder"
	"chain-indexer/internal/logger"
	"chain-indexer/internal/metrics"
	"chain-indexer/internal/models"
	"chain-indexer/internal/store"
	"chain-indexer/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyTxResult reports a transaction the node returned no result for.
var ErrEmptyTxResult = errors.New("empty tx result")

// HeightProcessor fetches, decodes and persists one height.
type HeightProcessor struct {
	client   chain.Client
	writer   HeightWriter
	decoder  *decoder.Decoder
	monikers MonikerResolver
	timeout  time.Duration
	tracer   trace.Tracer
	status   *statusBoard
	log      *logger.Logger
}

func NewHeightProcessor(client chain.Client, writer HeightWriter, dec *decoder.Decoder, monikers MonikerResolver, timeout time.Duration, log *logger.Logger) *HeightProcessor {
	return &HeightProcessor{
		client:   client,
		writer:   writer,
		decoder:  dec,
		monikers: monikers,
		timeout:  timeout,
		tracer:   tracing.Tracer("chain-indexer/collector"),
		status:   newStatusBoard(),
		log:      log,
	}
}

// Process ingests height. The fetch phase is bounded by the job timeout; the
// write runs under ctx so a slow node never cuts a transaction short. Any
// error fails the whole height.
func (h *HeightProcessor) Process(ctx context.Context, height int64) (err error) {
	ctx, span := h.tracer.Start(ctx, "collector.processHeight", trace.WithAttributes(attribute.Int64("height", height)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	data, err := h.fetch(ctx, height)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("txs", len(data.Transactions)))

	if err := h.writer.SaveHeight(ctx, data); err != nil {
		return &StageError{Stage: StageSave, Height: height, Err: err}
	}
	for table, n := range data.Records.Counts() {
		if n > 0 {
			metrics.RecordsDecoded.WithLabelValues(table).Add(float64(n))
		}
	}
	return nil
}

func (h *HeightProcessor) fetch(ctx context.Context, height int64) (*store.HeightData, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	blk, err := h.client.FetchBlock(ctx, height)
	if err != nil {
		return nil, &StageError{Stage: StageFetchBlock, Height: height, Err: err}
	}
	h.status.setChainID(blk.ChainID)
	results, err := h.fetchTxResults(ctx, blk)
	if err != nil {
		return nil, &StageError{Stage: StageFetchTx, Height: height, Err: err}
	}
	return h.build(ctx, blk, results), nil
}

// fetchTxResults fetches every transaction of the block concurrently. One
// failure cancels the rest and fails the block.
func (h *HeightProcessor) fetchTxResults(ctx context.Context, blk *chain.RawBlock) ([]*chain.TxResult, error) {
	hashes := blk.TxHashes()
	results := make([]*chain.TxResult, len(hashes))
	if len(hashes) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, hash := range hashes {
		g.Go(func() error {
			ctx, span := h.tracer.Start(gctx, "chain.fetchTxResult", trace.WithAttributes(attribute.String("tx_hash", hash)))
			defer span.End()
			res, err := h.client.FetchTxResult(ctx, hash)
			if err != nil {
				span.RecordError(err)
				return err
			}
			if res == nil {
				err := fmt.Errorf("tx %s: %w", hash, ErrEmptyTxResult)
				span.RecordError(err)
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// build turns the fetched block into rows. It is deterministic so that a
// retried height writes the same rows.
func (h *HeightProcessor) build(ctx context.Context, blk *chain.RawBlock, results []*chain.TxResult) *store.HeightData {
	hashes := blk.TxHashes()
	data := &store.HeightData{
		Block: models.Block{
			Height:    blk.Height,
			Hash:      blk.Hash,
			ChainID:   blk.ChainID,
			Timestamp: blk.Time,
			Proposer:  blk.ProposerAddress,
			NumTxs:    len(blk.Txs),
			Round:     blk.Round,
		},
		Transactions: make([]models.Transaction, 0, len(results)),
	}
	if h.monikers != nil {
		data.Block.ProposerMoniker = h.monikers.Resolve(ctx, blk.ProposerAddress)
	}

	for i, res := range results {
		if res.Hash == "" {
			res.Hash = hashes[i]
		}
		if res.Height == 0 {
			res.Height = blk.Height
		}
		if res.Timestamp.IsZero() {
			res.Timestamp = blk.Time
		}
		data.Block.GasUsed += res.GasUsed
		data.Block.GasWanted += res.GasWanted
		data.Transactions = append(data.Transactions, h.decoder.Transaction(res))
		data.Records.Append(h.decoder.DecodeTx(res))
	}
	return data
}
