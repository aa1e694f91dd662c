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

// Metrics exposes application-level instruments.
type Metrics struct {
	invitationsIssued   metric.Int64Counter
	invitationsResolved metric.Int64Counter
	timelineAppends     metric.Int64Counter
	bidsAwarded         metric.Int64Counter
	rateLimitAllowed    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
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
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "timberline"
	}
	meter := provider.Meter(name)

	invitationsIssued, err := meter.Int64Counter("timberline_invitations_issued_total")
	if err != nil {
		return nil, err
	}
	invitationsResolved, err := meter.Int64Counter("timberline_invitations_resolved_total")
	if err != nil {
		return nil, err
	}
	timelineAppends, err := meter.Int64Counter("timberline_timeline_appends_total")
	if err != nil {
		return nil, err
	}
	bidsAwarded, err := meter.Int64Counter("timberline_bids_awarded_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("timberline_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("timberline_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invitationsIssued:   invitationsIssued,
		invitationsResolved: invitationsResolved,
		timelineAppends:     timelineAppends,
		bidsAwarded:         bidsAwarded,
		rateLimitAllowed:    rateLimitAllowed,
		rateLimitDenied:     rateLimitDenied,
	}, nil
}

// RecordInvitationIssued increments invitation issue counts.
func (m *Metrics) RecordInvitationIssued(ctx context.Context, role string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("role", strings.TrimSpace(role)))
	m.invitationsIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvitationResolved increments resolve counts by outcome state.
func (m *Metrics) RecordInvitationResolved(ctx context.Context, state string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("state", strings.TrimSpace(state)))
	m.invitationsResolved.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTimelineAppend increments timeline append counts.
func (m *Metrics) RecordTimelineAppend(ctx context.Context, phase string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("phase", strings.TrimSpace(phase)))
	m.timelineAppends.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBidAwarded increments bid award counts.
func (m *Metrics) RecordBidAwarded(ctx context.Context) {
	if m == nil {
		return
	}
	m.bidsAwarded.Add(ctx, 1)
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"role":        {},
	"state":       {},
	"phase":       {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
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
