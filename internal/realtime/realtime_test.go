package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accessFunc func(userID, eventID uuid.UUID) bool

func (f accessFunc) CanViewEvent(_ context.Context, userID, eventID uuid.UUID) (bool, error) {
	return f(userID, eventID), nil
}

func newFeedServer(t *testing.T, hub *Hub, owner, eventID uuid.UUID) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validate := func(token string) (uuid.UUID, error) {
		id, err := uuid.Parse(token)
		if err != nil {
			return uuid.Nil, errors.New("bad token")
		}
		return id, nil
	}
	access := accessFunc(func(userID, id uuid.UUID) bool { return userID == owner && id == eventID })
	r := gin.New()
	r.GET("/ws/events/:id", ServeWs(hub, NewUpgrader("*"), validate, access, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, eventID uuid.UUID, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events/" + eventID.String() + "?token=" + token
}

func TestServeWsRejectsUnauthorized(t *testing.T) {
	owner, eventID := uuid.New(), uuid.New()
	srv := newFeedServer(t, NewHub(nil, nil, nil), owner, eventID)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, eventID, "garbage"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, eventID, uuid.NewString()), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeedDeliversLocalBroadcast(t *testing.T) {
	owner, eventID := uuid.New(), uuid.New()
	hub := NewHub(nil, nil, nil)
	srv := newFeedServer(t, hub, owner, eventID)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, eventID, owner.String()), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ViewerCount(eventID) == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastToEventAndPublish(eventID, "rsvp.confirmed", map[string]string{"name": "Ana"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "rsvp.confirmed", msg.Event)
	assert.JSONEq(t, `{"name":"Ana"}`, string(msg.Data))

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Event)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ViewerCount(eventID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeedDeliversThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ps := NewRedisPubSub(rdb, nil)

	owner, eventID := uuid.New(), uuid.New()
	serverHub := NewHub(nil, ps, ps)
	srv := newFeedServer(t, serverHub, owner, eventID)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, eventID, owner.String()), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return serverHub.ViewerCount(eventID) == 1 }, time.Second, 10*time.Millisecond)

	// A hub with no clients, as in the worker process, still reaches the server's dashboards.
	workerHub := NewHub(nil, ps, nil)
	workerHub.BroadcastToEventAndPublish(eventID, "message.sent", map[string]string{"guest_id": "g1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "message.sent", msg.Event)
	assert.JSONEq(t, `{"guest_id":"g1"}`, string(msg.Data))
}

func TestRedisPubSubCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ps := NewRedisPubSub(rdb, nil)
	eventID := uuid.New()

	got := make(chan string, 4)
	cancel, err := ps.SubscribeEvent(eventID, func(event string, _ []byte) { got <- event })
	require.NoError(t, err)

	require.NoError(t, ps.PublishEvent(eventID, "event.paid", []byte(`{}`)))
	select {
	case ev := <-got:
		assert.Equal(t, "event.paid", ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	cancel()
}

type blockingSubscriber struct {
	started  chan uuid.UUID
	release  chan struct{}
	canceled chan uuid.UUID
}

func newBlockingSubscriber() *blockingSubscriber {
	return &blockingSubscriber{
		started:  make(chan uuid.UUID, 4),
		release:  make(chan struct{}),
		canceled: make(chan uuid.UUID, 4),
	}
}

func (b *blockingSubscriber) SubscribeEvent(eventID uuid.UUID, _ func(string, []byte)) (func(), error) {
	b.started <- eventID
	<-b.release
	return func() { b.canceled <- eventID }, nil
}

func testClient(hub *Hub, eventID uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), EventID: eventID, hub: hub, send: make(chan WSMessage, 4)}
}

func TestRegisterSubscribesWithoutBlockingHub(t *testing.T) {
	sub := newBlockingSubscriber()
	hub := NewHub(nil, nil, sub)
	slow, other := uuid.New(), uuid.New()

	registered := make(chan struct{})
	go func() {
		hub.Register(testClient(hub, slow))
		close(registered)
	}()
	select {
	case <-sub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe not started")
	}

	done := make(chan struct{})
	go func() {
		hub.Broadcast(other, "message.sent", []byte(`{}`))
		c := &Client{ID: "x", EventID: other, hub: hub, send: make(chan WSMessage, 1)}
		hub.Unregister(c)
		assert.Equal(t, 1, hub.ViewerCount(slow))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub locked while subscribing")
	}

	close(sub.release)
	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("register did not return")
	}
	hub.mu.RLock()
	_, stored := hub.subs[slow]
	hub.mu.RUnlock()
	assert.True(t, stored)
}

func TestRegisterCancelsSubscriptionForClosedRoom(t *testing.T) {
	sub := newBlockingSubscriber()
	hub := NewHub(nil, nil, sub)
	eventID := uuid.New()
	c := testClient(hub, eventID)

	registered := make(chan struct{})
	go func() {
		hub.Register(c)
		close(registered)
	}()
	<-sub.started
	hub.Unregister(c)
	close(sub.release)
	<-registered

	select {
	case id := <-sub.canceled:
		assert.Equal(t, eventID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not cancelled")
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.subs)
	assert.Zero(t, len(hub.events))
}
