package ws

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
)

// newClient builds an admin connection, free to follow any topic.
func newClient(topics ...string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: uuid.New().String(),
		Roles:  []string{auth.RoleAdmin},
		Topics: topics,
		Send:   make(chan []byte, 8),
	}
}

// newUserClient builds a connection owned by a plain patient.
func newUserClient(userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID.String(),
		Roles:  []string{auth.RolePatient},
		Send:   make(chan []byte, 8),
	}
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sessionID := uuid.New()
	topic := SessionTopic(sessionID)

	sub := newClient(topic)
	other := newClient("user/" + uuid.New().String())
	h.Register(sub)
	h.Register(other)

	h.Broadcast(topic, NewEvent("session.participant_joined", topic, map[string]string{"role": "provider"}))

	select {
	case raw := <-sub.Send:
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Type != "session.participant_joined" {
			t.Errorf("unexpected type %q", ev.Type)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("non-subscriber received event")
	default:
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newClient()
	h.Register(c)

	topic := UserTopic(uuid.New())
	h.Subscribe(c, []string{topic})
	if h.TopicCount(topic) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.TopicCount(topic))
	}

	h.Unsubscribe(c, []string{topic})
	if h.TopicCount(topic) != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", h.TopicCount(topic))
	}
	if len(c.Topics) != 0 {
		t.Errorf("client topic list not cleared: %v", c.Topics)
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := NewHub(zerolog.Nop())
	topic := SessionTopic(uuid.New())
	c := newClient(topic)
	h.Register(c)

	h.Unregister(c)

	if _, open := <-c.Send; open {
		t.Error("send channel should be closed after unregister")
	}
	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", h.ClientCount())
	}
	if h.TopicCount(topic) != 0 {
		t.Errorf("topic subscription should be removed")
	}

	// A second unregister must be a no-op.
	h.Unregister(c)
}

func TestProcessMessage(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newClient()
	h.Register(c)

	topic := SessionTopic(uuid.New())
	h.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{topic}})
	if h.TopicCount(topic) != 1 {
		t.Fatal("subscribe message not applied")
	}

	h.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{topic}})
	if h.TopicCount(topic) != 0 {
		t.Fatal("unsubscribe message not applied")
	}

	// Unknown actions are ignored.
	h.ProcessMessage(c, ClientMessage{Action: "bogus", Topics: []string{topic}})
	if h.TopicCount(topic) != 0 {
		t.Fatal("unknown action should be ignored")
	}
}

func TestBroadcastSkipsFullBuffers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	topic := SessionTopic(uuid.New())
	c := &Client{ID: "slow", Roles: []string{auth.RoleAdmin}, Topics: []string{topic}, Send: make(chan []byte)}
	h.Register(c)

	// Unbuffered channel with no reader; Broadcast must not block.
	done := make(chan struct{})
	go func() {
		h.Broadcast(topic, NewEvent("session.ended", topic, nil))
		close(done)
	}()
	<-done
}

func TestSubscribeDeniedForForeignUserTopic(t *testing.T) {
	h := NewHub(zerolog.Nop())
	owner := uuid.New()
	c := newUserClient(owner)
	h.Register(c)

	own := UserTopic(owner)
	foreign := UserTopic(uuid.New())
	h.Subscribe(c, []string{own, foreign})

	if h.TopicCount(own) != 1 {
		t.Error("client could not follow its own feed")
	}
	if h.TopicCount(foreign) != 0 {
		t.Error("client followed another user's feed")
	}

	// A denied topic must also not receive broadcasts through the client.
	h.Broadcast(foreign, NewEvent("inbox.new", foreign, nil))
	select {
	case <-c.Send:
		t.Fatal("client received another user's event")
	default:
	}
}

func TestSessionTopicsGoThroughAuthorizer(t *testing.T) {
	h := NewHub(zerolog.Nop())
	participant := uuid.New()
	sessionID := uuid.New()
	h.SetTopicAuthorizer(func(_ context.Context, userID, topic string) bool {
		return userID == participant.String() && strings.HasPrefix(topic, "telemedicine/")
	})

	topic := SessionTopic(sessionID)

	member := newUserClient(participant)
	h.Register(member)
	h.Subscribe(member, []string{topic})
	if h.TopicCount(topic) != 1 {
		t.Error("participant could not follow the session")
	}

	stranger := newUserClient(uuid.New())
	h.Register(stranger)
	h.Subscribe(stranger, []string{topic})
	if h.TopicCount(topic) != 1 {
		t.Error("non-participant followed the session")
	}
}

func TestRegisterDropsUnauthorizedInitialTopics(t *testing.T) {
	h := NewHub(zerolog.Nop())
	owner := uuid.New()
	c := newUserClient(owner)
	c.Topics = []string{UserTopic(owner), UserTopic(uuid.New())}
	h.Register(c)

	if len(c.Topics) != 1 || c.Topics[0] != UserTopic(owner) {
		t.Errorf("initial topics not filtered: %v", c.Topics)
	}
}
