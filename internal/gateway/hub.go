// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package gateway runs the websocket session layer: a hub of named
// groups (user:<id>, device:<id>, ops), per-session command handling,
// and the NATS bridge that feeds published fan-out events into groups.
package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/vigilhq/vigil/internal/logging"
	"github.com/vigilhq/vigil/internal/metrics"
)

// Group names. A session joins exactly one group at registration.
const (
	OpsGroup          = "ops"
	userGroupPrefix   = "user:"
	deviceGroupPrefix = "device:"
)

// UserGroup names the personal stream group for an owner.
func UserGroup(ownerID string) string {
	return userGroupPrefix + ownerID
}

// DeviceGroup names the observer group for a device.
func DeviceGroup(deviceID string) string {
	return deviceGroupPrefix + deviceID
}

// groupMessage carries one payload to every member of a group.
type groupMessage struct {
	group string
	data  []byte
}

// Hub tracks connected sessions by group and broadcasts payloads to them.
// Membership mutates only through the Register/Unregister channels; reads
// go through the RWMutex.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	broadcast chan groupMessage

	mu     sync.RWMutex
	groups map[string]map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan groupMessage, 256),
		groups:     make(map[string]map[*Client]bool),
	}
}

// Publish queues a payload for every session in a group. Non-blocking: if
// the hub's queue is full the payload is dropped, matching the
// fire-and-forget delivery contract.
func (h *Hub) Publish(group string, data []byte) {
	select {
	case h.broadcast <- groupMessage{group: group, data: data}:
	default:
		logging.Warn().Str("group", group).Msg("hub broadcast queue full, payload dropped")
	}
}

// GroupSize reports current members of a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// RunWithContext runs the hub loop until the context is canceled, then
// closes every session. Lifecycle events take priority over broadcasts so
// membership is settled before payload delivery.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	members, ok := h.groups[client.group]
	if !ok {
		members = make(map[*Client]bool)
		h.groups[client.group] = members
	}
	members[client] = true
	total := len(members)
	h.mu.Unlock()

	metrics.ActiveSessions.WithLabelValues(string(client.kind)).Inc()
	logging.Info().
		Str("group", client.group).
		Str("kind", string(client.kind)).
		Int("group_size", total).
		Msg("session joined")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	members, ok := h.groups[client.group]
	removed := false
	if ok && members[client] {
		delete(members, client)
		close(client.send)
		removed = true
		if len(members) == 0 {
			delete(h.groups, client.group)
		}
	}
	h.mu.Unlock()

	if removed {
		metrics.ActiveSessions.WithLabelValues(string(client.kind)).Dec()
		logging.Info().
			Str("group", client.group).
			Str("kind", string(client.kind)).
			Msg("session left")
	}
}

// deliver fans a payload out to a group in a stable order. Sessions whose
// send buffer is full are dropped rather than allowed to stall the hub.
func (h *Hub) deliver(msg groupMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.groups[msg.group]
	if len(members) == 0 {
		return
	}

	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var slow []*Client
	for _, client := range clients {
		select {
		case client.send <- msg.data:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		close(client.send)
		delete(members, client)
		metrics.ActiveSessions.WithLabelValues(string(client.kind)).Dec()
		metrics.SlowClientsDropped.Inc()
		logging.Warn().
			Str("group", msg.group).
			Str("kind", string(client.kind)).
			Msg("slow session dropped")
	}
	if len(members) == 0 {
		delete(h.groups, msg.group)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for group, members := range h.groups {
		clients := make([]*Client, 0, len(members))
		for client := range members {
			clients = append(clients, client)
		}
		sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
		for _, client := range clients {
			close(client.send)
			metrics.ActiveSessions.WithLabelValues(string(client.kind)).Dec()
			count++
		}
		delete(h.groups, group)
	}
	logging.Info().Int("sessions_closed", count).Msg("gateway hub stopped")
}
