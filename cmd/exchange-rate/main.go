// Command exchange-rate управляет справочником курсов: просмотр, история,
// ручная запись, обновление у провайдера и очистка старых записей.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/service/currency"
	"github.com/vladislavdragonenkov/florist/internal/service/rates"
	"github.com/vladislavdragonenkov/florist/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "FLORIST_POSTGRES_DSN"
	envRatesAPIURL = "FLORIST_RATES_API_URL"
	defaultAPIURL  = "https://open.er-api.com/v6"
)

type options struct {
	dsn     string
	apiURL  string
	base    string
	target  string
	show    bool
	history int
	set     string
	source  string
	refresh bool
	prune   bool
}

// errNoAction возвращается, если не выбрано ни одно действие.
var errNoAction = errors.New("nothing to do: use -show, -history, -set, -refresh or -prune")

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	opts := parseFlags()
	if opts.dsn == "" {
		fail("%s (or -dsn) is required", envPostgresDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	rateStore := currency.NewStore(postgres.NewExchangeRateRepository(store), log.WithField("component", "currency"))
	fetcher := rates.NewHTTPFetcher(opts.apiURL, 0)

	if err := run(ctx, rateStore, fetcher, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	flag.StringVar(&opts.apiURL, "api-url", "", "rates provider URL (fallback: "+envRatesAPIURL+")")
	flag.StringVar(&opts.base, "base", "USD", "base currency")
	flag.StringVar(&opts.target, "target", "HKD", "target currency")
	flag.BoolVar(&opts.show, "show", false, "show the latest rate and its age")
	flag.IntVar(&opts.history, "history", 0, "show N latest records")
	flag.StringVar(&opts.set, "set", "", "record a rate manually, e.g. 7.8125")
	flag.StringVar(&opts.source, "source", "manual", "source label for -set")
	flag.BoolVar(&opts.refresh, "refresh", false, "fetch the rate from the provider and record it")
	flag.BoolVar(&opts.prune, "prune", false, "remove records older than the retention window (latest record is kept)")
	flag.Parse()

	if strings.TrimSpace(opts.dsn) == "" {
		opts.dsn = os.Getenv(envPostgresDSN)
	}
	opts.dsn = strings.TrimSpace(opts.dsn)
	if strings.TrimSpace(opts.apiURL) == "" {
		opts.apiURL = os.Getenv(envRatesAPIURL)
	}
	if strings.TrimSpace(opts.apiURL) == "" {
		opts.apiURL = defaultAPIURL
	}
	return opts
}

// run выполняет выбранные действия по порядку: запись, обновление, очистка, вывод.
func run(ctx context.Context, store *currency.Store, fetcher rates.Fetcher, opts options, out io.Writer) error {
	if opts.set == "" && !opts.refresh && !opts.prune && !opts.show && opts.history <= 0 {
		return errNoAction
	}

	if opts.set != "" {
		rate, err := decimal.NewFromString(strings.TrimSpace(opts.set))
		if err != nil {
			return fmt.Errorf("parse rate %q: %w", opts.set, err)
		}
		record, err := store.Record(ctx, opts.base, opts.target, rate, opts.source)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "recorded %s = %s (%s)\n", record.Pair(), record.Rate.String(), record.Source)
	}

	refresherCfg := rates.PairConfig(opts.base, opts.target)
	refresher := rates.NewRefresher(fetcher, store, refresherCfg, log.WithField("component", "rates"))

	if opts.refresh {
		record, err := refresher.RefreshOnce(ctx)
		if err != nil {
			return fmt.Errorf("refresh failed, previous rate kept: %w", err)
		}
		_, _ = fmt.Fprintf(out, "refreshed %s = %s\n", record.Pair(), record.Rate.String())
	}

	if opts.prune {
		removed, err := refresher.PruneOnce(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "pruned %d record(s)\n", removed)
	}

	if opts.show {
		info, err := store.Info(ctx, opts.base, opts.target)
		if err != nil {
			return fmt.Errorf("latest rate %s/%s: %w", opts.base, opts.target, err)
		}
		freshness := "fresh"
		if !info.Fresh {
			freshness = "stale"
		}
		_, _ = fmt.Fprintf(out, "%s/%s = %s (%s, captured %s, %.1fh old, %s)\n",
			info.Base, info.Target, info.Rate.String(), info.Source,
			info.CapturedAt.Format(time.RFC3339), info.AgeHours, freshness)
	}

	if opts.history > 0 {
		records, err := store.History(ctx, opts.base, opts.target, opts.history)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "CAPTURED AT\tRATE\tSOURCE")
		for _, r := range records {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.CapturedAt.Format(time.RFC3339), r.Rate.String(), r.Source)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
