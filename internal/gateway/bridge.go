// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/vigilhq/vigil/internal/fanout"
	"github.com/vigilhq/vigil/internal/logging"
)

// Bridge subscribes to the fan-out subjects and routes each message to
// the matching hub group. It is a suture service: Serve blocks until the
// context is canceled.
type Bridge struct {
	hub *Hub
	url string
}

// NewBridge wires a bridge against the hub and a NATS server URL.
func NewBridge(hub *Hub, url string) *Bridge {
	return &Bridge{hub: hub, url: url}
}

// subjectToGroup maps a NATS subject to its hub group. Empty means the
// subject carries no routable audience.
func subjectToGroup(subject string) string {
	switch {
	case subject == fanout.OpsSubject:
		return OpsGroup
	case strings.HasPrefix(subject, "vigil.user."):
		return UserGroup(strings.TrimPrefix(subject, "vigil.user."))
	case strings.HasPrefix(subject, "vigil.device."):
		return DeviceGroup(strings.TrimPrefix(subject, "vigil.device."))
	default:
		return ""
	}
}

// Serve connects, subscribes to the wildcard, and pumps messages into the
// hub until the context ends. Returning an error hands restart policy to
// the supervisor.
func (b *Bridge) Serve(ctx context.Context) error {
	conn, err := nats.Connect(b.url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("bridge connect nats: %w", err)
	}
	defer conn.Close()

	msgs := make(chan *nats.Msg, 512)
	sub, err := conn.ChanSubscribe(fanout.WildcardSubscription, msgs)
	if err != nil {
		return fmt.Errorf("bridge subscribe: %w", err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			logging.Warn().Err(err).Msg("bridge unsubscribe")
		}
	}()

	logging.Info().Str("url", b.url).Msg("gateway bridge running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			group := subjectToGroup(msg.Subject)
			if group == "" {
				logging.Debug().Str("subject", msg.Subject).Msg("bridge message with no audience")
				continue
			}
			b.hub.Publish(group, msg.Data)
		}
	}
}

func (b *Bridge) String() string {
	return "gateway-bridge"
}
