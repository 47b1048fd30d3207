package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes ledger instruments.
type Metrics struct {
	chargesCreated       metric.Int64Counter
	chargeTransitions    metric.Int64Counter
	paymentsRegistered   metric.Int64Counter
	paymentsCancelled    metric.Int64Counter
	ledgerEntries        metric.Int64Counter
	concurrencyConflicts metric.Int64Counter
	reconciliationErrors metric.Int64Counter
	monthlyGenerated     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the ledger instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "bursar"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.chargesCreated, "bursar_charges_created_total"},
		{&m.chargeTransitions, "bursar_charge_transitions_total"},
		{&m.paymentsRegistered, "bursar_payments_registered_total"},
		{&m.paymentsCancelled, "bursar_payments_cancelled_total"},
		{&m.ledgerEntries, "bursar_ledger_entries_total"},
		{&m.concurrencyConflicts, "bursar_charge_concurrency_conflicts_total"},
		{&m.reconciliationErrors, "bursar_statement_reconciliation_errors_total"},
		{&m.monthlyGenerated, "bursar_monthly_charges_generated_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// NewNoop returns instruments backed by the noop provider. Used by tests.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordChargeCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.chargesCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("source", source))...))
}

func (m *Metrics) RecordChargeTransition(ctx context.Context, from, to string) {
	if m == nil || from == to {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	)
	m.chargeTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPaymentRegistered(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.paymentsRegistered.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("method", method))...))
}

func (m *Metrics) RecordPaymentCancelled(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.paymentsCancelled.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("method", method))...))
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordConcurrencyConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.concurrencyConflicts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("operation", operation))...))
}

func (m *Metrics) RecordReconciliationError(ctx context.Context, orgID string) {
	if m == nil {
		return
	}
	m.reconciliationErrors.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("org_id", orgID))...))
}

func (m *Metrics) RecordMonthlyGenerated(ctx context.Context, inserted int) {
	if m == nil || inserted <= 0 {
		return
	}
	m.monthlyGenerated.Add(ctx, int64(inserted))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":      {},
	"status_code": {},
	"source":      {},
	"source_type": {},
	"method":      {},
	"operation":   {},
	"from":        {},
	"to":          {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Student, charge and payment identifiers are never allowed.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
