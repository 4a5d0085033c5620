package websocket

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/disaster-tracker-be/internal/models"
	"github.com/isdelr/disaster-tracker-be/internal/observability"
)

// DefaultQueueSize bounds events waiting for the hub loop.
const DefaultQueueSize = 256

type directMessage struct {
	client *Client
	msg    []byte
}

type subscription struct {
	client  *Client
	country string
	reply   chan []string // countries the client is in after the change
}

// Hub maintains the set of active clients and broadcasts new events to
// them. All registry state is owned by the Run loop.
type Hub struct {
	// Clients connected with global scope.
	global map[*Client]bool

	// Every registered client, global or not.
	clients map[*Client]bool

	// A map of country names to the set of clients subscribed to it.
	rooms map[string]map[*Client]bool

	broadcast  chan models.Event
	register   chan *Client
	unregister chan *Client
	join       chan subscription
	leave      chan subscription
	replies    chan directMessage
	done       chan struct{}

	metrics *observability.Metrics
}

// NewHub creates a new Hub.
func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		global:     make(map[*Client]bool),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan models.Event, DefaultQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan subscription),
		leave:      make(chan subscription),
		replies:    make(chan directMessage),
		done:       make(chan struct{}),
		metrics:    metrics,
	}
}

// Run starts the Hub's message processing loop. It returns when ctx is done,
// after closing every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			log.Info().Msg("Websocket hub stopped")
			return
		case client := <-h.register:
			h.clients[client] = true
			if client.Global {
				h.global[client] = true
			}
			// If client has a country on registration, subscribe them.
			if client.Country != "" {
				h.addSubscription(client, client.Country)
			}
			h.metrics.WebsocketClients.Set(float64(len(h.clients)))
			log.Info().Int("total_clients", len(h.clients)).Bool("global", client.Global).
				Str("country", client.Country).Msg("Client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case sub := <-h.join:
			if h.clients[sub.client] {
				h.addSubscription(sub.client, sub.country)
			}
			h.acknowledge(sub)
		case sub := <-h.leave:
			h.removeSubscription(sub.client, sub.country)
			h.acknowledge(sub)
		case d := <-h.replies:
			if h.clients[d.client] {
				h.send(d.client, d.msg)
			}
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

// Notify queues ev for delivery without blocking. When the queue is full
// the event is dropped; clients recover it through polling.
func (h *Hub) Notify(ev models.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.metrics.FanoutDropped.WithLabelValues("queue_full").Inc()
		log.Warn().Str("event_id", ev.ID).Msg("Websocket broadcast queue full, dropping event")
	}
}

// Register adds a client. It is a no-op once the hub has stopped.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.Send)
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) direct(c *Client, msg []byte) {
	select {
	case h.replies <- directMessage{client: c, msg: msg}:
	case <-h.done:
	}
}

// Join subscribes c to events for country and returns its rooms.
func (h *Hub) Join(country string, c *Client) []string {
	return h.change(h.join, country, c)
}

// Leave unsubscribes c from country and returns its remaining rooms.
func (h *Hub) Leave(country string, c *Client) []string {
	return h.change(h.leave, country, c)
}

func (h *Hub) change(ch chan subscription, country string, c *Client) []string {
	sub := subscription{client: c, country: country, reply: make(chan []string, 1)}
	select {
	case ch <- sub:
		return <-sub.reply
	case <-h.done:
		return nil
	}
}

func (h *Hub) acknowledge(sub subscription) {
	countries := h.countriesOf(sub.client)
	if h.clients[sub.client] {
		h.send(sub.client, NewSubscribedMessage(countries))
	}
	sub.reply <- countries
}

func (h *Hub) deliver(ev models.Event) {
	if len(h.global) > 0 {
		msg, err := NewEventMessage(ActionNewEvent, ev)
		if err != nil {
			log.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to encode websocket event")
			return
		}
		for client := range h.global {
			h.send(client, msg)
		}
	}

	room := h.rooms[ev.Location.Country]
	if len(room) == 0 {
		return
	}
	msg, err := NewEventMessage(ActionLocationEvent, ev)
	if err != nil {
		log.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to encode websocket event")
		return
	}
	for client := range room {
		h.send(client, msg)
	}
}

// send delivers msg or drops a client whose buffer is full.
func (h *Hub) send(client *Client, msg []byte) {
	select {
	case client.Send <- msg:
	default:
		h.metrics.FanoutDropped.WithLabelValues("slow_client").Inc()
		log.Warn().Msg("Websocket client too slow, disconnecting")
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	delete(h.global, client)
	for country := range h.rooms {
		h.removeSubscription(client, country)
	}
	h.metrics.WebsocketClients.Set(float64(len(h.clients)))
	close(client.Send)
}

func (h *Hub) addSubscription(client *Client, country string) {
	if h.rooms[country] == nil {
		h.rooms[country] = make(map[*Client]bool)
	}
	h.rooms[country][client] = true
}

func (h *Hub) removeSubscription(client *Client, country string) {
	if subs, ok := h.rooms[country]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.rooms, country)
		}
	}
}

func (h *Hub) countriesOf(client *Client) []string {
	var out []string
	for country, subs := range h.rooms {
		if subs[client] {
			out = append(out, country)
		}
	}
	sort.Strings(out)
	return out
}
