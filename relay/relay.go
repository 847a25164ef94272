package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/truemediaorg/postrelay/model"
)

const DefaultChunkSize = 32 * 1024

// ErrSinkClosed means the client stopped reading (disconnect or cancelled request).
var ErrSinkClosed = errors.New("sink closed")

// Relay streams single assets from their origin to a sink without buffering them.
type Relay struct {
	client     *http.Client
	identities IdentityPool
	chunkSize  int
}

func NewRelay(client *http.Client, identities IdentityPool, chunkSize int) *Relay {
	if client == nil {
		client = http.DefaultClient
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Relay{
		client:     client,
		identities: identities,
		chunkSize:  chunkSize,
	}
}

type Outcome struct {
	Bytes int64
}

// Origin is an origin response whose status has already been checked. Close must be called.
type Origin struct {
	Asset         model.Asset
	ContentLength int64
	ContentType   string

	ctx       context.Context
	body      io.ReadCloser
	chunkSize int
}

// Open requests the asset and fails before any byte is read if the origin refuses it.
// An unusable URL is OriginRejected; transport errors and any non-2xx status are OriginUnavailable.
func (r *Relay) Open(ctx context.Context, asset model.Asset) (*Origin, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		return nil, model.NewError(model.ClassOriginRejected, "invalid origin URL", err)
	}
	req.Header.Add("User-Agent", r.identities.Pick())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, model.NewError(model.ClassOriginUnavailable, "failed to fetch media from the CDN", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, model.Errorf(model.ClassOriginUnavailable, "CDN returned status %d", resp.StatusCode)
	}
	return &Origin{
		Asset:         asset,
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
		ctx:           ctx,
		body:          resp.Body,
		chunkSize:     r.chunkSize,
	}, nil
}

func (o *Origin) Close() error {
	return o.body.Close()
}

// CopyTo forwards the body one chunk at a time; the next read only happens once the sink
// accepted the previous chunk.
func (o *Origin) CopyTo(sink io.Writer) (int64, error) {
	buf := make([]byte, o.chunkSize)
	var written int64
	for {
		n, readErr := o.body.Read(buf)
		if n > 0 {
			wn, writeErr := sink.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, fmt.Errorf("%w: %v", ErrSinkClosed, writeErr)
			}
			if wn < n {
				return written, fmt.Errorf("%w: %v", ErrSinkClosed, io.ErrShortWrite)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			if o.ctx.Err() != nil {
				return written, fmt.Errorf("%w: %v", ErrSinkClosed, o.ctx.Err())
			}
			return written, model.NewError(model.ClassOriginUnavailable, "CDN stream interrupted", readErr)
		}
	}
}

// Relay opens the asset and copies it to sink. Once bytes have been forwarded a failure
// leaves a truncated sink; callers streaming HTTP responses can't turn that into an error status.
func (r *Relay) Relay(ctx context.Context, asset model.Asset, sink io.Writer) (Outcome, error) {
	origin, err := r.Open(ctx, asset)
	if err != nil {
		return Outcome{}, err
	}
	defer origin.Close()

	n, err := origin.CopyTo(sink)
	return Outcome{Bytes: n}, err
}
