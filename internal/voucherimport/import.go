// Package voucherimport issues vouchers in bulk from gzip-compressed code lists.
package voucherimport

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-pricing/internal/domain/discount"
)

const (
	maxCodeLen    = 64
	progressEvery = 100_000
	queueSize     = 1024
)

// Template is applied to every imported code.
type Template struct {
	Type              discount.Type
	Value             decimal.Decimal
	ExpiresAt         time.Time
	UsageLimit        int
	MinOrderValue     decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
}

// Options tunes an import run.
type Options struct {
	// Workers is the number of concurrent voucher writers.
	Workers int
	// ExpectedCodes sizes the duplicate filter.
	ExpectedCodes uint
	// FalsePositiveRate of the duplicate filter.
	FalsePositiveRate float64
}

// Stats summarizes an import run.
type Stats struct {
	Read       int64
	Invalid    int64
	Duplicates int64
	Issued     int64
}

type counters struct {
	read, invalid, duplicates, issued atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Read:       c.read.Load(),
		Invalid:    c.invalid.Load(),
		Duplicates: c.duplicates.Load(),
		Issued:     c.issued.Load(),
	}
}

// Importer streams code files and creates one voucher per distinct code.
type Importer struct {
	repo    discount.Repository
	manager *discount.Manager
	tmpl    Template
	opts    Options
}

// New creates an Importer writing through repo.
func New(repo discount.Repository, tmpl Template, opts Options) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ExpectedCodes == 0 {
		opts.ExpectedCodes = 1_000_000
	}
	if opts.FalsePositiveRate <= 0 {
		opts.FalsePositiveRate = 0.001
	}
	return &Importer{
		repo:    repo,
		manager: discount.NewManager(repo),
		tmpl:    tmpl,
		opts:    opts,
	}
}

// Import reads every file concurrently. Codes seen before, in this run or in
// the store, are counted as duplicates and skipped. The first failing write
// or read aborts the run.
func (im *Importer) Import(ctx context.Context, files ...string) (Stats, error) {
	var c counters
	lg := zctx.From(ctx)

	g, ctx := errgroup.WithContext(ctx)
	raw := make(chan string, queueSize)
	fresh := make(chan string, queueSize)

	readers, rctx := errgroup.WithContext(ctx)
	for _, path := range files {
		readers.Go(func() error {
			return streamCodes(rctx, path, raw)
		})
	}
	g.Go(func() error {
		defer close(raw)
		return readers.Wait()
	})

	g.Go(func() error {
		defer close(fresh)
		return im.dedup(ctx, raw, fresh, &c)
	})

	for range im.opts.Workers {
		g.Go(func() error {
			for code := range fresh {
				n, err := im.issue(ctx, code, &c)
				if err != nil {
					return err
				}
				if n > 0 && n%progressEvery == 0 {
					lg.Info("Import progress", zap.Int64("issued", n), zap.Int64("read", c.read.Load()))
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return c.stats(), err
}

// dedup forwards codes not seen before. The bloom filter answers "new" for
// most codes without touching the store; on a possible hit the store decides.
func (im *Importer) dedup(ctx context.Context, in <-chan string, out chan<- string, c *counters) error {
	filter := bloom.NewWithEstimates(im.opts.ExpectedCodes, im.opts.FalsePositiveRate)
	for line := range in {
		c.read.Add(1)
		code, ok := normalize(line)
		if !ok {
			c.invalid.Add(1)
			continue
		}
		if filter.TestOrAddString(code) {
			_, err := im.repo.FindActiveByCode(ctx, discount.KindVoucher, code)
			switch {
			case err == nil:
				c.duplicates.Add(1)
				continue
			case !errors.Is(err, discount.ErrNotFound):
				return errors.Wrapf(err, "check %s", code)
			}
		}
		select {
		case out <- code:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// issue creates the voucher and returns the running issued count, or zero if
// the code already existed.
func (im *Importer) issue(ctx context.Context, code string, c *counters) (int64, error) {
	_, err := im.manager.Create(ctx, discount.CreateInput{
		Kind:              discount.KindVoucher,
		Code:              code,
		Type:              im.tmpl.Type,
		Value:             im.tmpl.Value,
		ExpiresAt:         im.tmpl.ExpiresAt,
		UsageLimit:        im.tmpl.UsageLimit,
		MinOrderValue:     im.tmpl.MinOrderValue,
		MaxDiscountAmount: im.tmpl.MaxDiscountAmount,
	})
	switch {
	case err == nil:
		return c.issued.Add(1), nil
	case errors.Is(err, discount.ErrDuplicateCode):
		// Another worker or an earlier run got there first.
		c.duplicates.Add(1)
		return 0, nil
	default:
		return 0, errors.Wrapf(err, "issue %s", code)
	}
}

// normalize upper-cases a code and rejects blanks, comments and codes with
// characters outside A-Z, 0-9, '-' and '_'.
func normalize(line string) (string, bool) {
	code := discount.NormalizeCode(line)
	if code == "" || strings.HasPrefix(code, "#") || len(code) > maxCodeLen {
		return "", false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", false
		}
	}
	return code, true
}

// streamCodes sends every line of a gzip file to out.
func streamCodes(ctx context.Context, path string, out chan<- string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
