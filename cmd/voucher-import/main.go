// Command voucher-import issues single-use vouchers from gzip code lists.
//
//	voucher-import -type fixed -value 10 -expires-in 720h codes1.gz codes2.gz
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/storage/postgres"
	"github.com/xenking/order-pricing/internal/voucherimport"
)

type flags struct {
	databaseURL string
	kind        string
	value       string
	expiresIn   time.Duration
	usageLimit  int
	minOrder    string
	maxDiscount string
	workers     int
	expected    uint
	files       []string
}

func main() {
	var f flags
	flag.StringVar(&f.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&f.kind, "type", string(discount.TypeFixed), "discount type: percentage or fixed")
	flag.StringVar(&f.value, "value", "", "discount value")
	flag.DurationVar(&f.expiresIn, "expires-in", 30*24*time.Hour, "voucher lifetime from now")
	flag.IntVar(&f.usageLimit, "usage-limit", 1, "uses per voucher")
	flag.StringVar(&f.minOrder, "min-order", "", "minimum order subtotal (optional)")
	flag.StringVar(&f.maxDiscount, "max-discount", "", "discount cap for percentage vouchers (optional)")
	flag.IntVar(&f.workers, "workers", 8, "concurrent voucher writers")
	flag.UintVar(&f.expected, "expected", 10_000_000, "expected number of codes, sizes the duplicate filter")
	flag.Parse()
	f.files = flag.Args()

	if f.databaseURL == "" {
		f.databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		return run(ctx, lg, f)
	})
}

func run(ctx context.Context, lg *zap.Logger, f flags) error {
	if f.databaseURL == "" {
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	if len(f.files) == 0 {
		return errors.New("no input files")
	}
	tmpl, err := f.template(time.Now())
	if err != nil {
		return err
	}

	if err := postgres.RunMigrations(f.databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, f.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Importing vouchers",
		zap.Strings("files", f.files),
		zap.String("type", string(tmpl.Type)),
		zap.String("value", tmpl.Value.String()),
		zap.Time("expires_at", tmpl.ExpiresAt),
	)
	start := time.Now()
	stats, err := voucherimport.New(postgres.NewDiscountRepository(pool), tmpl, voucherimport.Options{
		Workers:       f.workers,
		ExpectedCodes: f.expected,
	}).Import(ctx, f.files...)
	lg.Info("Import finished",
		zap.Int64("read", stats.Read),
		zap.Int64("issued", stats.Issued),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("invalid", stats.Invalid),
		zap.Duration("elapsed", time.Since(start)),
	)
	return err
}

func (f flags) template(now time.Time) (voucherimport.Template, error) {
	value, err := decimal.NewFromString(f.value)
	if err != nil {
		return voucherimport.Template{}, errors.Wrap(err, "parse -value")
	}
	minOrder, err := optionalDecimal(f.minOrder)
	if err != nil {
		return voucherimport.Template{}, errors.Wrap(err, "parse -min-order")
	}
	maxDiscount, err := optionalDecimal(f.maxDiscount)
	if err != nil {
		return voucherimport.Template{}, errors.Wrap(err, "parse -max-discount")
	}
	return voucherimport.Template{
		Type:              discount.Type(f.kind),
		Value:             value,
		ExpiresAt:         now.Add(f.expiresIn),
		UsageLimit:        f.usageLimit,
		MinOrderValue:     minOrder,
		MaxDiscountAmount: maxDiscount,
	}, nil
}

func optionalDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
