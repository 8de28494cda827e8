package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sla_engine/internal/domain/notification"
	"sla_engine/internal/infra/metrics"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings tune the per-channel circuit breakers.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings trips a channel after 3+ requests with at least 60% failures.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:  1,
	Interval:     time.Minute,
	Timeout:      30 * time.Second,
	MinRequests:  3,
	FailureRatio: 0.6,
}

type route struct {
	channel notification.Channel
	breaker *gobreaker.CircuitBreaker
}

// Router fans a notification out to named channels, each behind its own circuit breaker.
type Router struct {
	routes []route
	byName map[string]route
	logger *logrus.Entry
}

func NewRouter(settings BreakerSettings, logger *logrus.Entry, channels ...notification.Channel) *Router {
	r := &Router{
		byName: make(map[string]route, len(channels)),
		logger: logger.WithField("component", "outbound"),
	}
	for _, ch := range channels {
		name := ch.Name()
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: settings.MaxRequests,
			Interval:    settings.Interval,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.OutboundBreakerState.WithLabelValues(name).Set(float64(to))
				r.logger.WithFields(logrus.Fields{
					"channel": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Outbound circuit breaker changed state")
			},
		})
		rt := route{channel: ch, breaker: cb}
		r.routes = append(r.routes, rt)
		r.byName[name] = rt
	}
	return r
}

// Push sends through the named channels, or through every channel when names is empty.
// Unknown names are ignored. The returned error joins the failures of all channels.
func (r *Router) Push(ctx context.Context, names []string, userID int64, templateKey string, params map[string]any) error {
	targets := r.routes
	if len(names) > 0 {
		targets = make([]route, 0, len(names))
		for _, n := range names {
			rt, ok := r.byName[n]
			if !ok {
				r.logger.WithField("channel", n).Debug("Unknown outbound channel requested, skipping")
				continue
			}
			targets = append(targets, rt)
		}
	}

	var errs []error
	for _, rt := range targets {
		name := rt.channel.Name()
		_, err := rt.breaker.Execute(func() (any, error) {
			return nil, rt.channel.Send(ctx, userID, templateKey, params)
		})
		if err != nil {
			metrics.OutboundSendFailure.WithLabelValues(name).Inc()
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
			continue
		}
		metrics.OutboundSendSuccess.WithLabelValues(name).Inc()
	}
	return errors.Join(errs...)
}
