// Command code-ingest imports bulk promo code drops into the discount_codes
// table. Marketing vendors deliver gzipped files with one code per line; a
// code counts as genuine only when it appears in at least two of the files,
// which filters out the noise each vendor pads its lists with.
//
// The cross-check runs in two passes so the files never have to fit in
// memory: pass one builds a bloom filter per file, pass two re-streams each
// file and tests codes against the other files' filters.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ministore/api/internal/storage/postgres"
)

const (
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 12
)

type options struct {
	databaseURL   string
	files         []string
	bloomCapacity uint
	bloomFPR      float64

	// Rule applied to every imported code.
	discountType string
	value        string
	minOrder     string
	maxDiscount  string
	usageLimit   int
	campaignDays int
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.bloomCapacity, "bloom-capacity", 50_000_000, "expected codes per file for bloom filter sizing")
	flag.Float64Var(&opts.bloomFPR, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.StringVar(&opts.discountType, "type", "FIXED_AMOUNT", "discount type for imported codes (PERCENTAGE or FIXED_AMOUNT)")
	flag.StringVar(&opts.value, "value", "20000", "discount value for imported codes")
	flag.StringVar(&opts.minOrder, "min-order", "200000", "minimum order amount for imported codes")
	flag.StringVar(&opts.maxDiscount, "max-discount", "0", "maximum discount amount (0 = uncapped)")
	flag.IntVar(&opts.usageLimit, "usage-limit", 1, "usage limit per imported code (0 = unlimited)")
	flag.IntVar(&opts.campaignDays, "campaign-days", 30, "validity window in days starting now")
	flag.Parse()
	opts.files = flag.Args()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if len(opts.files) < 2 {
		slog.Error("at least two code files are required", slog.Int("given", len(opts.files)))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("code ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("code ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	for _, f := range opts.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(opts.files)))

	filters, err := buildBloomFilters(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: cross-checking codes")

	codes, err := crossCheckCodes(ctx, opts.files, filters)
	if err != nil {
		return errors.Wrap(err, "cross-check codes")
	}

	slog.Info("genuine codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCodes(ctx, pool, codes, opts); err != nil {
		return errors.Wrap(err, "write codes to database")
	}
	return nil
}

// normalizeCode trims and upcases a raw line, returning "" for lines that
// cannot be a code.
func normalizeCode(line string) string {
	code := strings.ToUpper(strings.TrimSpace(line))
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return ""
	}
	return code
}

func buildBloomFilters(ctx context.Context, opts options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(opts.files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range opts.files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.bloomCapacity, opts.bloomFPR)
			var count uint64

			err := streamGzFile(ctx, path, func(line string) {
				code := normalizeCode(line)
				if code == "" {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}

			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// crossCheckCodes re-streams every file and keeps codes that appear in at
// least two files. Each goroutine records which files a code was seen or
// bloom-matched in as a bitmask; the masks are merged afterwards.
func crossCheckCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	partial := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]uint)
			selfBit := uint(1) << uint(i)

			err := streamGzFile(ctx, path, func(line string) {
				code := normalizeCode(line)
				if code == "" {
					return
				}
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						seen[code] |= selfBit
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}

			slog.Info("pass 2 complete", slog.String("file", path), slog.Int("candidates", len(seen)))
			partial[i] = seen
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range partial {
		for code, mask := range m {
			merged[code] |= mask
		}
	}

	var genuine []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			genuine = append(genuine, code)
		}
	}
	return genuine, nil
}

// streamGzFile reads a gzip-compressed file line by line. pgzip decompresses
// on a separate goroutine, so the scanner is not the bottleneck.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

const upsertImportedCodeSQL = `INSERT INTO discount_codes
	(id, code, discount_type, discount_value, min_order_amount, max_discount_amount,
	 start_date, end_date, usage_limit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (code) DO UPDATE SET
	discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
	min_order_amount = EXCLUDED.min_order_amount,
	max_discount_amount = EXCLUDED.max_discount_amount,
	start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
	usage_limit = EXCLUDED.usage_limit, is_active = TRUE, updated_at = now()`

func writeCodes(ctx context.Context, pool *pgxpool.Pool, codes []string, opts options) error {
	value, err := decimal.NewFromString(opts.value)
	if err != nil {
		return errors.Wrap(err, "parse value")
	}
	minOrder, err := decimal.NewFromString(opts.minOrder)
	if err != nil {
		return errors.Wrap(err, "parse min-order")
	}
	maxDiscount, err := decimal.NewFromString(opts.maxDiscount)
	if err != nil {
		return errors.Wrap(err, "parse max-discount")
	}

	start := time.Now()
	end := start.Add(time.Duration(opts.campaignDays) * 24 * time.Hour)

	slog.Info("writing codes", slog.Int("count", len(codes)))
	for i, code := range codes {
		if _, err := pool.Exec(ctx, upsertImportedCodeSQL,
			uuid.New().String(), code, opts.discountType,
			value, minOrder, maxDiscount, start, end, opts.usageLimit,
		); err != nil {
			return errors.Wrapf(err, "upsert code %s", code)
		}
		if (i+1)%1000 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}
	return nil
}
