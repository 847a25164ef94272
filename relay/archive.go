package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/truemediaorg/postrelay/model"

	log "github.com/sirupsen/logrus"
)

// ArchiveOutcome lists entry names in the order they were handled.
type ArchiveOutcome struct {
	Written []string
	Omitted []string
	Bytes   int64
}

// Archiver streams several assets into one zip written straight to the sink.
type Archiver struct {
	relay *Relay
}

func NewArchiver(relay *Relay) *Archiver {
	return &Archiver{relay: relay}
}

/*
Archive writes one entry per asset in input order. An asset whose origin fails before its first
byte is logged and left out; the archive carries on. If every asset fails the result is a valid,
empty zip.

Failures after an entry has started (origin cut mid-body, client gone) abort the archive and leave
the sink truncated.
*/
func (a *Archiver) Archive(ctx context.Context, assets []model.Asset, sink io.Writer) (ArchiveOutcome, error) {
	var outcome ArchiveOutcome
	counter := &countingWriter{w: sink}
	zw := zip.NewWriter(counter)
	names := map[string]int{}

	for i, asset := range assets {
		if err := ctx.Err(); err != nil {
			outcome.Bytes = counter.n
			return outcome, fmt.Errorf("%w: %v", ErrSinkClosed, err)
		}
		name := entryName(asset, i, names)
		entryLog := log.WithField("entry", name).WithField("ordinal", i+1).WithField("total", len(assets))

		origin, err := a.relay.Open(ctx, asset)
		if err != nil {
			entryLog.Warnf("omitting archive entry: %v", err)
			outcome.Omitted = append(outcome.Omitted, name)
			continue
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Store,
			Modified: time.Now(),
		})
		if err != nil {
			origin.Close()
			outcome.Bytes = counter.n
			return outcome, fmt.Errorf("%w: %v", ErrSinkClosed, err)
		}
		n, err := origin.CopyTo(w)
		origin.Close()
		if err != nil {
			outcome.Bytes = counter.n
			if !errors.Is(err, ErrSinkClosed) {
				entryLog.WithField("bytes", n).Errorf("archive aborted mid-entry: %v", err)
			}
			return outcome, err
		}
		entryLog.WithField("bytes", n).Debug("archive entry written")
		outcome.Written = append(outcome.Written, name)
	}

	if err := zw.Close(); err != nil {
		outcome.Bytes = counter.n
		return outcome, fmt.Errorf("%w: %v", ErrSinkClosed, err)
	}
	outcome.Bytes = counter.n
	return outcome, nil
}

// entryName keeps names flat and unique inside the archive.
func entryName(asset model.Asset, index int, seen map[string]int) string {
	name := path.Base(strings.ReplaceAll(asset.SuggestedFilename, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		name = fmt.Sprintf("item_%d%s", index+1, asset.Kind.Extension())
	}
	if seen[name] == 0 {
		seen[name]++
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for count := seen[name] + 1; seen[candidate] > 0; count++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, count, ext)
	}
	seen[name]++
	seen[candidate]++
	return candidate
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
