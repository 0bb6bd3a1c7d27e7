// Command coupon-import loads promo code lists into the coupons table. Every
// imported code shares one discount rule given by flags.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"regexp"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ethnicwear/storefront/internal/domain/coupon"
	"github.com/ethnicwear/storefront/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	batchSize     = 50_000
	maxFiles      = 64
)

var codePattern = regexp.MustCompile(`^[A-Z0-9-]{4,32}$`)

type options struct {
	databaseURL string
	minFiles    int
	capacity    uint
	template    coupon.Rule
}

// fileResult holds the accepted codes of one file, each with the bit of
// that file set.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		opts         options
		discountType string
		value        string
		maxDiscount  string
		validFrom    string
		validUntil   string
	)

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.minFiles, "min-files", 1, "accept a code only if it appears in at least this many files")
	flag.UintVar(&opts.capacity, "capacity", 10_000_000, "expected number of codes per file, sizes the bloom filters")
	flag.StringVar(&discountType, "type", "percentage", "discount type: percentage or fixed")
	flag.StringVar(&value, "value", "10", "discount value")
	flag.StringVar(&maxDiscount, "max-discount", "0", "cap for percentage discounts, 0 for none")
	flag.IntVar(&opts.template.MinItems, "min-items", 0, "minimum cart item count")
	flag.IntVar(&opts.template.MaxUses, "max-uses", 1, "uses per code, 0 for unlimited")
	flag.StringVar(&opts.template.Description, "description", "Promo code", "coupon description")
	flag.StringVar(&validFrom, "valid-from", "", "RFC 3339 start of validity")
	flag.StringVar(&validUntil, "valid-until", "", "RFC 3339 end of validity")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	if err := opts.parseTemplate(discountType, value, maxDiscount, validFrom, validUntil); err != nil {
		slog.Error("invalid coupon rule", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, flag.Args(), opts); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func (o *options) parseTemplate(discountType, value, maxDiscount, validFrom, validUntil string) error {
	var err error
	o.template.Code = "TEMPLATE"
	o.template.DiscountType = coupon.DiscountType(discountType)
	o.template.Active = true
	if o.template.Value, err = decimal.NewFromString(value); err != nil {
		return errors.Wrap(err, "parse value")
	}
	if o.template.MaxDiscount, err = decimal.NewFromString(maxDiscount); err != nil {
		return errors.Wrap(err, "parse max discount")
	}
	if o.template.ValidFrom, err = parseTime(validFrom); err != nil {
		return errors.Wrap(err, "parse valid-from")
	}
	if o.template.ValidUntil, err = parseTime(validUntil); err != nil {
		return errors.Wrap(err, "parse valid-until")
	}
	return coupon.ValidateRule(&o.template)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func run(ctx context.Context, files []string, opts options) error {
	switch {
	case len(files) == 0:
		return errors.New("no input files: pass one or more .gz code lists")
	case len(files) > maxFiles:
		return errors.Errorf("at most %d files are supported", maxFiles)
	case opts.minFiles < 1 || opts.minFiles > len(files):
		return errors.Errorf("min-files must be between 1 and %d", len(files))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	codes, err := collectCodes(ctx, files, opts.minFiles, opts.capacity)
	if err != nil {
		return err
	}
	slog.Info("codes accepted", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewCouponRepository(pool)
	opts.template.CreatedAt = time.Now().UTC()

	var inserted int64
	for start := 0; start < len(codes); start += batchSize {
		end := min(start+batchSize, len(codes))
		n, err := repo.CopyCoupons(ctx, opts.template, codes[start:end])
		if err != nil {
			return errors.Wrapf(err, "write codes %d-%d", start, end)
		}
		inserted += n
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}
	slog.Info("coupons inserted",
		slog.Int64("inserted", inserted),
		slog.Int64("skipped_existing", int64(len(codes))-inserted),
	)
	return nil
}

// collectCodes returns the distinct codes that appear in at least minFiles
// of the files, sorted.
func collectCodes(ctx context.Context, files []string, minFiles int, capacity uint) ([]string, error) {
	var filters []*bloom.BloomFilter
	if minFiles > 1 {
		// Pass 1: one bloom filter per file, built concurrently.
		slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
		var err error
		if filters, err = buildBloomFilters(ctx, files, capacity); err != nil {
			return nil, errors.Wrap(err, "build bloom filters")
		}
	}

	// Pass 2: collect codes, keeping only those another file may contain
	// when more than one file is required.
	slog.Info("pass 2: collecting codes")
	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(collectFromFile(gctx, i, f, filters, results))
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "collect codes")
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	var out []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= minFiles {
			out = append(out, code)
		}
	}
	slices.Sort(out)
	return out, nil
}

func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64
			if err := streamGzFile(ctx, path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}
			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func collectFromFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter, results []fileResult) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
			}
			if filters != nil && !inOtherFile(filters, idx, code) {
				return
			}
			candidates[code] |= fileBit
		}); err != nil {
			return errors.Wrapf(err, "scan file %d", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)
		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

func inOtherFile(filters []*bloom.BloomFilter, idx int, code string) bool {
	for j, f := range filters {
		if j != idx && f.TestString(code) {
			return true
		}
	}
	return false
}

// streamGzFile opens a gzip-compressed file and calls fn for every line that
// is a well-formed code once normalized.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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
		if err := ctx.Err(); err != nil {
			return err
		}
		code := coupon.NormalizeCode(scanner.Text())
		if codePattern.MatchString(code) {
			fn(code)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
