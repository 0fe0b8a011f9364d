package object

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/gobucket/pkg/provider"
	s3provider "github.com/3leaps/gobucket/pkg/provider/s3"
)

const (
	// DefaultPageSize is the number of keys requested per listing round-trip.
	DefaultPageSize = 1000

	// MaxPageSize is the largest page S3 returns.
	MaxPageSize = 1000
)

// ErrRepeatedToken reports a store that handed back the continuation token
// it was just given, which would otherwise loop forever.
var ErrRepeatedToken = errors.New("store repeated a continuation token")

// Pager is a lazy, forward-only sequence of listing pages.
//
// Each call to Next performs at most the round-trips needed to produce one
// non-empty page; nothing is prefetched. Pages holding no objects (or none
// that survive the Match filter) are skipped. After a failure the Pager
// stays failed; resume with a new Pager whose StartToken is
// ContinuationToken().
//
// A Pager is not safe for concurrent use.
type Pager struct {
	m      *Manager
	bucket string
	prefix string
	match  string
	size   int32

	// resume is the token positioned right after the last page fetched
	// successfully; next is the token for the upcoming fetch.
	resume string
	next   string
	done   bool
	err    error
	pages  int
}

// List returns a pager over the objects in bucket whose keys start with
// opts.Prefix. No request is made until the first call to Next.
func (m *Manager) List(bucket string, opts provider.ListOptions) *Pager {
	p := &Pager{
		m:      m,
		bucket: bucket,
		prefix: opts.Prefix,
		match:  opts.Match,
		size:   clampPageSize(opts.PageSize),
		resume: opts.StartToken,
		next:   opts.StartToken,
	}
	if p.match != "" && !doublestar.ValidatePattern(p.match) {
		p.err = fmt.Errorf("%w: invalid match pattern %q: %w", provider.ErrInvalidConfig, p.match, doublestar.ErrBadPattern)
	}
	return p
}

func clampPageSize(n int) int32 {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return int32(n)
	}
}

// Next fetches the next non-empty page. It returns false once the listing
// is exhausted or after an error.
func (p *Pager) Next(ctx context.Context) (provider.Page, bool, error) {
	for {
		if p.err != nil {
			return provider.Page{}, false, p.err
		}
		if p.done {
			return provider.Page{}, false, nil
		}

		out, err := p.fetch(ctx)
		if err != nil {
			p.err = err
			p.m.log.Error("Listing failed",
				zap.String("bucket", p.bucket),
				zap.String("prefix", p.prefix),
				zap.Int("pages", p.pages),
				zap.Error(err))
			return provider.Page{}, false, err
		}

		requested := p.next
		token := aws.ToString(out.NextContinuationToken)
		if !aws.ToBool(out.IsTruncated) || token == "" {
			p.done = true
			token = ""
		} else if token == requested {
			p.err = s3provider.WrapError("ListObjectsV2", p.bucket, "", ErrRepeatedToken)
			return provider.Page{}, false, p.err
		}
		p.next = token
		p.resume = token

		page, err := p.toPage(out.Contents, token)
		if err != nil {
			p.err = err
			return provider.Page{}, false, err
		}
		if page.Len() == 0 {
			continue
		}
		p.pages++
		return page, true, nil
	}
}

func (p *Pager) fetch(ctx context.Context) (*s3.ListObjectsV2Output, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		MaxKeys: aws.Int32(p.size),
	}
	if p.prefix != "" {
		input.Prefix = aws.String(p.prefix)
	}
	if p.next != "" {
		input.ContinuationToken = aws.String(p.next)
	}

	start := time.Now()
	out, err := p.m.api.ListObjectsV2(ctx, input)
	err = wrap("ListObjectsV2", p.bucket, "", err)
	p.m.observe("list", start, err)
	return out, err
}

func (p *Pager) toPage(contents []types.Object, token string) (provider.Page, error) {
	page := provider.Page{NextToken: token}
	for _, obj := range contents {
		key := aws.ToString(obj.Key)
		if p.match != "" {
			ok, err := doublestar.Match(p.match, key)
			if err != nil {
				return provider.Page{}, fmt.Errorf("%w: match %q: %w", provider.ErrInvalidConfig, p.match, err)
			}
			if !ok {
				continue
			}
		}
		page.Objects = append(page.Objects, provider.ObjectSummary{
			Key:          key,
			Size:         aws.ToInt64(obj.Size),
			ETag:         s3provider.CleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
			StorageClass: string(obj.StorageClass),
		})
	}
	return page, nil
}

// All adapts the pager to a range-over-func sequence. An error is yielded
// once, as the final element.
func (p *Pager) All(ctx context.Context) iter.Seq2[provider.Page, error] {
	return func(yield func(provider.Page, error) bool) {
		for {
			page, ok, err := p.Next(ctx)
			if err != nil {
				yield(provider.Page{}, err)
				return
			}
			if !ok || !yield(page, nil) {
				return
			}
		}
	}
}

// ContinuationToken returns the token that resumes the listing right after
// the last page fetched successfully. It is empty before the first page of
// an unstarted listing and once the listing is exhausted; use Done to tell
// them apart.
func (p *Pager) ContinuationToken() string {
	return p.resume
}

// Done reports whether the listing reached its end.
func (p *Pager) Done() bool {
	return p.done
}

// Err returns the error that stopped the pager, if any.
func (p *Pager) Err() error {
	return p.err
}

// Keys collects every key under prefix.
func (m *Manager) Keys(ctx context.Context, bucket, prefix string) ([]string, error) {
	keys := []string{}
	pager := m.List(bucket, provider.ListOptions{Prefix: prefix})
	for page, err := range pager.All(ctx) {
		if err != nil {
			return keys, err
		}
		keys = append(keys, page.Keys()...)
	}
	return keys, nil
}
