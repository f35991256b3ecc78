package router

import (
	"errors"
	"sync"
	"testing"

	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

type fakeConnection struct {
	id   string
	mu   sync.Mutex
	sent []*types.Envelope
	fail bool
}

func (c *fakeConnection) ID() string { return c.id }

func (c *fakeConnection) Send(env *types.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send buffer full")
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConnection) Close() error { return nil }

func (c *fakeConnection) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, len(c.sent))
	for i, env := range c.sent {
		types[i] = env.Type
	}
	return types
}

type fakeLookup map[string]*fakeConnection

func (l fakeLookup) Lookup(connID string) (interfaces.Connection, bool) {
	c, ok := l[connID]
	if !ok {
		return nil, false
	}
	return c, true
}

func newFixture() (*Router, fakeLookup) {
	conns := fakeLookup{
		"teacher": {id: "teacher"},
		"s1":      {id: "s1"},
		"s2":      {id: "s2"},
	}
	return NewRouter(conns), conns
}

func TestRouter_ToOne(t *testing.T) {
	r, conns := newFixture()

	r.ToOne("s1", types.NewEnvelope(types.EventAnswerAccepted, nil))

	if got := conns["s1"].received(); len(got) != 1 || got[0] != types.EventAnswerAccepted {
		t.Errorf("Expected answer_accepted for s1, got %v", got)
	}
	if got := conns["s2"].received(); len(got) != 0 {
		t.Errorf("s2 should receive nothing, got %v", got)
	}
}

func TestRouter_ToTeacherWithoutTeacher(t *testing.T) {
	r, conns := newFixture()

	r.ToTeacher("", types.NewEnvelope(types.EventRosterUpdated, nil))

	for id, c := range conns {
		if got := c.received(); len(got) != 0 {
			t.Errorf("%s should receive nothing, got %v", id, got)
		}
	}
	if stats := r.Stats(); stats.Delivered != 0 || stats.Dropped != 0 {
		t.Errorf("Empty teacher should be a silent no-op: %+v", stats)
	}
}

func TestRouter_ToEveryone(t *testing.T) {
	r, conns := newFixture()

	r.ToEveryone("teacher", []string{"s1", "s2"}, types.NewEnvelope(types.EventTimerTick, nil))

	for id, c := range conns {
		if got := c.received(); len(got) != 1 {
			t.Errorf("%s: expected 1 envelope, got %v", id, got)
		}
	}
	if got := r.Stats().Delivered; got != 3 {
		t.Errorf("Expected 3 deliveries, got %d", got)
	}
}

func TestRouter_ToEveryoneSkipsDuplicateTeacher(t *testing.T) {
	r, conns := newFixture()

	r.ToEveryone("teacher", []string{"teacher", "s1"}, types.NewEnvelope(types.EventPollCleared, nil))

	if got := conns["teacher"].received(); len(got) != 1 {
		t.Errorf("Teacher should receive once, got %v", got)
	}
}

func TestRouter_ContinuesPastFailures(t *testing.T) {
	r, conns := newFixture()
	conns["s1"].fail = true

	r.ToEveryone("teacher", []string{"gone", "s1", "s2"}, types.NewEnvelope(types.EventPollEnded, nil))

	if got := conns["s2"].received(); len(got) != 1 {
		t.Errorf("s2 should still receive, got %v", got)
	}
	stats := r.Stats()
	if stats.Delivered != 2 || stats.Dropped != 2 {
		t.Errorf("Expected 2 delivered and 2 dropped, got %+v", stats)
	}
}
