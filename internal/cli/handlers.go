package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/sante-etl/internal/config"
	"github.com/BartekS5/sante-etl/internal/etl"
	"github.com/BartekS5/sante-etl/internal/ledger"
	"github.com/BartekS5/sante-etl/pkg/database"
	"github.com/BartekS5/sante-etl/pkg/logger"
	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/objectstore"
)

// env holds what one command opened. close releases it in reverse order.
type env struct {
	cfg     *config.Config
	catalog *models.Catalog
	buckets etl.Buckets
	store   *etl.Store
	writer  *etl.PartitionWriter
	closers []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// storeFor picks where partitions live: S3 for real runs, memory for dry runs.
type storeFor func(cfg *config.Config) (objectstore.Connector, error)

func s3Store(cfg *config.Config) (objectstore.Connector, error) {
	if err := cfg.RequireStore(); err != nil {
		return nil, err
	}
	return objectstore.NewS3Connector(objectstore.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
	}), nil
}

func memoryStore(*config.Config) (objectstore.Connector, error) {
	return objectstore.NewMemoryClient().Connector(), nil
}

func openEnv(ctx context.Context, opts *GlobalOptions, storage storeFor) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	catalog, err := config.LoadCatalog(firstNonEmpty(opts.CatalogFile, cfg.CatalogFile))
	if err != nil {
		return nil, err
	}

	connector, err := storage(cfg)
	if err != nil {
		return nil, err
	}
	store, err := etl.OpenStore(ctx, connector)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:     cfg,
		catalog: catalog,
		buckets: etl.Buckets{Raw: cfg.BucketRaw, Clean: cfg.BucketClean, Aggregated: cfg.BucketAggregated},
		store:   store,
		writer:  etl.NewPartitionWriter(store, cfg.RetryDelay),
	}
	e.closers = append(e.closers, func() { _ = store.Close() })
	return e, nil
}

func (e *env) openSource(ctx context.Context) (*etl.SourceReader, error) {
	if err := e.cfg.RequireSource(); err != nil {
		return nil, err
	}
	d, err := database.DialectFor(e.cfg.SourceDriver)
	if err != nil {
		return nil, err
	}
	db, err := database.ConnectSQL(ctx, d, e.cfg.SourceDSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", etl.ErrSourceUnavailable, err)
	}
	e.closers = append(e.closers, func() { db.Close() })
	return etl.NewSourceReader(db, d), nil
}

func (e *env) openWarehouse(ctx context.Context) (*etl.WarehouseLoader, error) {
	if err := e.cfg.RequireWarehouse(); err != nil {
		return nil, err
	}
	d, err := database.DialectFor(e.cfg.WarehouseDriver)
	if err != nil {
		return nil, err
	}
	db, err := database.ConnectSQL(ctx, d, e.cfg.WarehouseDSN)
	if err != nil {
		return nil, fmt.Errorf("warehouse: %w", err)
	}
	e.closers = append(e.closers, func() { db.Close() })
	return etl.NewWarehouseLoader(db, d, e.catalog, e.store, e.buckets), nil
}

// connectLedger opens the Mongo run ledger. Callers check LedgerEnabled.
func connectLedger(ctx context.Context, cfg *config.Config) (*ledger.MongoLedger, func(), error) {
	client, err := database.ConnectMongo(ctx, cfg.MongoConnString)
	if err != nil {
		return nil, nil, fmt.Errorf("run ledger: %w", err)
	}
	closeFn := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}
	l := ledger.NewMongoLedger(client, cfg.MongoDatabase)
	l.LockTTL = cfg.LockTTL
	return l, closeFn, nil
}

// openLedger returns a NopLedger when Mongo is not configured.
func (e *env) openLedger(ctx context.Context) (ledger.Ledger, error) {
	if !e.cfg.LedgerEnabled() {
		logger.Debugf("MONGO_CONNECTION_STRING not set, run ledger disabled")
		return ledger.NopLedger{}, nil
	}
	l, closeFn, err := connectLedger(ctx, e.cfg)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeFn)

	if err := l.EnsureIndexes(ctx); err != nil {
		logger.Warnf("Could not create ledger indexes: %v", err)
	}
	return l, nil
}

// openMongoLedger is for the commands that only make sense with a ledger.
func openMongoLedger(ctx context.Context) (*ledger.MongoLedger, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.LedgerEnabled() {
		return nil, nil, errors.New("MONGO_CONNECTION_STRING environment variable not set, no run ledger to read")
	}
	return connectLedger(ctx, cfg)
}

func parseDate(s string) (models.Date, error) {
	d, err := models.ParseDate(s)
	if err != nil {
		return models.Date{}, fmt.Errorf("invalid --date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

func runExtract(cmd *cobra.Command, opts *StageOptions) error {
	date, err := parseDate(opts.Date)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := openEnv(ctx, opts.GlobalOptions, s3Store)
	if err != nil {
		return err
	}
	defer e.close()

	reader, err := e.openSource(ctx)
	if err != nil {
		return err
	}
	out, err := etl.NewExtractor(e.catalog, reader, e.writer, e.buckets).Extract(ctx, opts.Table, date)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return nil
}

func runClean(cmd *cobra.Command, opts *StageOptions) error {
	date, err := parseDate(opts.Date)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := openEnv(ctx, opts.GlobalOptions, s3Store)
	if err != nil {
		return err
	}
	defer e.close()

	cleaner := etl.NewCleaner(e.catalog, etl.NewRuleRegistry(e.catalog, e.cfg.SourceLocation), e.store, e.writer, e.buckets)
	out, err := cleaner.Clean(ctx, opts.Table, date)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return nil
}

func runAggregate(cmd *cobra.Command, opts *StageOptions) error {
	date, err := parseDate(opts.Date)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := openEnv(ctx, opts.GlobalOptions, s3Store)
	if err != nil {
		return err
	}
	defer e.close()

	out, err := etl.NewAggregator(e.store, e.writer, e.buckets).AggregateDaily(ctx, date)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return nil
}

type loadKind int

const (
	loadDimensions loadKind = iota
	loadFacts
)

func runLoad(cmd *cobra.Command, opts *StageOptions, kind loadKind) error {
	date, err := parseDate(opts.Date)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := openEnv(ctx, opts.GlobalOptions, s3Store)
	if err != nil {
		return err
	}
	defer e.close()

	loader, err := e.openWarehouse(ctx)
	if err != nil {
		return err
	}
	var outcomes []etl.Outcome
	if kind == loadDimensions {
		outcomes, err = loader.LoadDimensions(ctx, date)
	} else {
		outcomes, err = loader.LoadFacts(ctx, date)
	}
	printOutcomes(cmd, outcomes)
	if err != nil {
		return err
	}
	return loadFailures(outcomes)
}

func runPipeline(cmd *cobra.Command, opts *RunOptions) error {
	date, err := parseDate(opts.Date)
	if err != nil {
		return err
	}
	storage := s3Store
	if opts.DryRun {
		storage = memoryStore
	}
	ctx := cmd.Context()
	e, err := openEnv(ctx, opts.GlobalOptions, storage)
	if err != nil {
		return err
	}
	defer e.close()

	reader, err := e.openSource(ctx)
	if err != nil {
		return err
	}
	var (
		loader *etl.WarehouseLoader
		l      ledger.Ledger = ledger.NopLedger{}
	)
	if !opts.DryRun {
		if loader, err = e.openWarehouse(ctx); err != nil {
			return err
		}
		if l, err = e.openLedger(ctx); err != nil {
			return err
		}
	}

	p := etl.NewPipeline(e.catalog,
		etl.NewExtractor(e.catalog, reader, e.writer, e.buckets),
		etl.NewCleaner(e.catalog, etl.NewRuleRegistry(e.catalog, e.cfg.SourceLocation), e.store, e.writer, e.buckets),
		etl.NewAggregator(e.store, e.writer, e.buckets),
		loader,
		l,
	)
	p.DryRun = opts.DryRun
	if opts.DryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "[DRY RUN] Starting run %s for %s, partitions stay in memory...\n", p.RunID, date)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Starting run %s for %s...\n", p.RunID, date)
	}
	outcomes, err := p.Run(ctx, date)
	printOutcomes(cmd, outcomes)
	if err != nil {
		return err
	}
	if err := loadFailures(outcomes); err != nil {
		return err
	}
	if opts.DryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "[DRY RUN] Finished, nothing was stored or loaded.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Run finished successfully.")
	return nil
}

func showHistory(cmd *cobra.Command, opts *StageOptions) error {
	date, err := parseDate(opts.Date)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	l, closeFn, err := openMongoLedger(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := l.History(ctx, date.String())
	if err != nil {
		return fmt.Errorf("reading history of %s: %w", date, err)
	}
	return printHistory(cmd.OutOrStdout(), date, entries)
}

func printHistory(w io.Writer, date models.Date, entries []ledger.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "No runs recorded for %s\n", date)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED AT\tRUN\tSTAGE\tTABLE\tSTATUS\tRECORDS\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.RecordedAt.UTC().Format(time.RFC3339), e.RunID, e.Stage,
			orDash(e.Table), e.Status, e.Records, orDash(e.Error))
	}
	return tw.Flush()
}

func unlockDate(cmd *cobra.Command, opts *StageOptions) error {
	date, err := parseDate(opts.Date)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	l, closeFn, err := openMongoLedger(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	removed, err := l.Unlock(ctx, date.String())
	if err != nil {
		return err
	}
	if removed {
		logger.Warnf("Run lock for %s removed by hand", date)
		fmt.Fprintf(cmd.OutOrStdout(), "Released the run lock for %s\n", date)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "No run lock held for %s\n", date)
	}
	return nil
}

func printOutcomes(cmd *cobra.Command, outcomes []etl.Outcome) {
	for _, o := range outcomes {
		fmt.Fprintln(cmd.OutOrStdout(), o.String())
	}
}

// loadFailures turns failed warehouse tables into a non-zero exit.
func loadFailures(outcomes []etl.Outcome) error {
	if failed := etl.FailedLoads(outcomes); len(failed) > 0 {
		return fmt.Errorf("%d table(s) failed to load: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func listTables(cmd *cobra.Command, opts *GlobalOptions) error {
	catalog, err := config.LoadCatalog(firstNonEmpty(opts.CatalogFile, envOr("CATALOG_FILE", "")))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tCATEGORY\tDATE COLUMN\tCASTS")
	for _, t := range catalog.Tables {
		casts := make([]string, len(t.Casts))
		for i, c := range t.Casts {
			casts[i] = c.Column + ":" + string(c.Type)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Category, orDash(t.DateColumn), orDash(strings.Join(casts, ",")))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
