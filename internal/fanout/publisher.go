// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vigilhq/vigil/internal/logging"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/models"
	"github.com/vigilhq/vigil/internal/store"
)

// PublisherConfig tunes the NATS connection and the publish guard rails.
type PublisherConfig struct {
	URL              string
	FlushTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultPublisherConfig returns production defaults.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		FlushTimeout:     2 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Publisher fans correlation outcomes out over NATS. It implements the
// correlation engine's Notifier contract plus the acknowledgement hooks
// used by the API and gateway layers. Publish failures trip a circuit
// breaker and are dropped; the store remains the source of truth.
type Publisher struct {
	conn    *nats.Conn
	alerts  store.AlertStore
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
}

// NewPublisher connects to NATS and arms the circuit breaker.
func NewPublisher(cfg PublisherConfig, alerts store.AlertStore) (*Publisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logging.Error().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: "fanout-publisher",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		Timeout: cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.PublisherBreakerState.Set(float64(to))
			logging.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("fan-out circuit breaker state change")
		},
	})

	return &Publisher{
		conn:    conn,
		alerts:  alerts,
		breaker: breaker,
		timeout: cfg.FlushTimeout,
	}, nil
}

// Close drains the connection so buffered publishes flush before shutdown.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		logging.Warn().Err(err).Msg("drain nats connection")
	}
}

// publish marshals and sends one event. Failures are counted and logged,
// never returned: the caller has already committed the state change the
// event describes.
func (p *Publisher) publish(subject, eventType string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("subject", subject).Msg("marshal fan-out event")
		metrics.PublishFailures.Inc()
		return
	}

	_, err = p.breaker.Execute(func() (any, error) {
		if err := p.conn.Publish(subject, data); err != nil {
			return nil, err
		}
		return nil, p.conn.FlushTimeout(p.timeout)
	})
	if err != nil {
		logging.Warn().
			Err(err).
			Str("subject", subject).
			Str("event", eventType).
			Msg("fan-out publish dropped")
		metrics.PublishFailures.Inc()
		return
	}
	metrics.PublishedEvents.WithLabelValues(eventType).Inc()
}

// AlertCreated pushes a new alert to the owner's stream, the device's
// observers, and the operations dashboard, then refreshes the dashboard
// counters.
func (p *Publisher) AlertCreated(ctx context.Context, device *models.Device, alert *models.Alert) {
	priority := ClassifyAlert(alert)
	sound := priority == PriorityHigh

	if alert.OwnerID != "" {
		p.publish(UserSubject(alert.OwnerID), EventNewAlert, AlertEvent{
			Type:     EventNewAlert,
			Alert:    alert,
			Priority: priority,
			Sound:    sound,
		})
	}
	p.publish(DeviceSubject(device.ID), EventDeviceAlert, AlertEvent{
		Type:     EventDeviceAlert,
		Alert:    alert,
		Priority: priority,
		Sound:    sound,
	})
	p.publish(OpsSubject, EventNewAlertGlobal, GlobalAlertEvent{
		Type:     EventNewAlertGlobal,
		Alert:    alert,
		Priority: priority,
		Sound:    sound,
		Location: alert.DeviceAddress,
	})

	p.PublishStats(ctx)
}

// IngestionProcessed mirrors the raw report to device observers and
// refreshes the device's liveness on the owner's stream.
func (p *Publisher) IngestionProcessed(ctx context.Context, device *models.Device, rec *models.SignalRecord) {
	p.publish(DeviceSubject(device.ID), EventSensorData, SensorDataEvent{
		Type:           EventSensorData,
		DeviceID:       device.ID,
		Timestamp:      rec.Timestamp,
		Sensors:        rec.Vector,
		TriggeredCount: rec.Vector.Count(),
	})
	if device.Claimed() {
		p.publish(UserSubject(device.OwnerID), EventDeviceStatus, DeviceStatusEvent{
			Type:     EventDeviceStatus,
			DeviceID: device.ID,
			Name:     device.Name,
			Online:   true,
			LastSeen: rec.Timestamp,
		})
	}
}

// AlertAcknowledged announces a single acknowledgement transition to the
// owner and the dashboard.
func (p *Publisher) AlertAcknowledged(ctx context.Context, alert *models.Alert) {
	event := AlertUpdateEvent{
		Type:         EventAlertUpdate,
		AlertID:      alert.ID,
		Acknowledged: true,
	}
	if alert.OwnerID != "" {
		p.publish(UserSubject(alert.OwnerID), EventAlertUpdate, event)
	}
	p.publish(OpsSubject, EventAlertUpdate, event)
}

// BulkAcknowledged reports a bulk acknowledgement to the dashboard and to
// each affected owner with only their own alert ids, then refreshes the
// counters.
func (p *Publisher) BulkAcknowledged(ctx context.Context, count int, idsByOwner map[string][]string, allIDs []string) {
	p.publish(OpsSubject, EventBulkAckResult, BulkAckResultEvent{
		Type:     EventBulkAckResult,
		Count:    count,
		AlertIDs: allIDs,
	})
	for ownerID, ids := range idsByOwner {
		if ownerID == "" {
			continue
		}
		p.publish(UserSubject(ownerID), EventBulkAckResult, BulkAckResultEvent{
			Type:     EventBulkAckResult,
			Count:    len(ids),
			AlertIDs: ids,
		})
	}

	p.PublishStats(ctx)
}

// PublishStats recomputes the dashboard counters and pushes them to the
// operations channel.
func (p *Publisher) PublishStats(ctx context.Context) {
	stats, err := p.alerts.Stats(ctx, time.Now())
	if err != nil {
		logging.Warn().Err(err).Msg("recompute dashboard stats for push")
		return
	}
	p.publish(OpsSubject, EventStatsUpdate, StatsEvent{
		Type:  EventStatsUpdate,
		Stats: stats,
	})
}
