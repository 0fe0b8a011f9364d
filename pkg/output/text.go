package output

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// TextWriter renders records as human readable lines.
//
// Results go to out; error records go to errOut so piped output stays
// clean. TextWriter is safe for concurrent use.
type TextWriter struct {
	out    io.Writer
	errOut io.Writer
	mu     sync.Mutex
	closed bool
}

// NewTextWriter creates a text writer.
func NewTextWriter(out, errOut io.Writer) *TextWriter {
	return &TextWriter{out: out, errOut: errOut}
}

// WriteBucket prints the bucket name, with its creation date when listing.
func (tw *TextWriter) WriteBucket(ctx context.Context, b *BucketRecord) error {
	switch {
	case b.Action == ActionListed && b.Created != nil:
		return tw.printf(ctx, tw.out, "%s  %s\n", b.Created.UTC().Format(time.DateTime), b.Name)
	case b.Action == ActionListed:
		return tw.printf(ctx, tw.out, "%s\n", b.Name)
	default:
		return tw.printf(ctx, tw.out, "%s: %s\n", b.Name, b.Action)
	}
}

// WriteObject prints modification time, size and key.
func (tw *TextWriter) WriteObject(ctx context.Context, obj *ObjectRecord) error {
	return tw.printf(ctx, tw.out, "%s  %10s  %s\n",
		obj.LastModified.UTC().Format(time.DateTime),
		humanize.IBytes(uint64(max(obj.Size, 0))),
		obj.Key)
}

// WritePage prints the resume token of a page when there is one.
func (tw *TextWriter) WritePage(ctx context.Context, page *PageRecord) error {
	if page.NextToken == "" {
		return tw.printf(ctx, tw.out, "-- page %d: %d object(s), end of listing\n", page.Index, page.Objects)
	}
	return tw.printf(ctx, tw.out, "-- page %d: %d object(s), next token %s\n", page.Index, page.Objects, page.NextToken)
}

// WriteTransfer prints a one-line transfer summary.
func (tw *TextWriter) WriteTransfer(ctx context.Context, t *TransferRecord) error {
	from, to := t.Path, "s3://"+t.Bucket+"/"+t.Key
	if t.Direction == DirectionDownload {
		from, to = to, from
	}
	return tw.printf(ctx, tw.out, "%s -> %s (%s in %s)\n",
		from, to, humanize.IBytes(uint64(max(t.Bytes, 0))), t.Duration.Round(time.Millisecond))
}

// WriteDrain prints the drain totals and each failed key.
func (tw *TextWriter) WriteDrain(ctx context.Context, d *DrainRecord) error {
	if err := tw.printf(ctx, tw.out, "s3://%s/%s: %d of %d object(s) deleted in %d request(s) (%s)\n",
		d.Bucket, d.Prefix, d.Deleted, d.Listed, d.Requests, d.Policy); err != nil {
		return err
	}
	for _, f := range d.Failed {
		if err := tw.printf(ctx, tw.errOut, "  not deleted: %s: %s: %s\n", f.Key, f.Code, f.Message); err != nil {
			return err
		}
	}
	return nil
}

// WriteError prints the error to the error stream.
func (tw *TextWriter) WriteError(ctx context.Context, e *ErrorRecord) error {
	return tw.printf(ctx, tw.errOut, "error [%s]: %s\n", e.Code, e.Message)
}

// Close marks the writer as closed.
func (tw *TextWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.closed = true
	return nil
}

func (tw *TextWriter) printf(ctx context.Context, w io.Writer, format string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.closed {
		return ErrWriterClosed
	}
	if err := writeAll(w, fmt.Appendf(nil, format, args...)); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

var _ Writer = (*TextWriter)(nil)
