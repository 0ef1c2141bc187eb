package hub

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"monitord/internal/models"
)

type recorded struct {
	event   string
	payload any
}

// recordSink captures everything published to it.
type recordSink struct {
	mu     sync.Mutex
	events []recorded
}

func (s *recordSink) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recorded{event: event, payload: payload})
	return nil
}

func (s *recordSink) all() []recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recorded, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordSink) last(t *testing.T) recorded {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		t.Fatal("no events recorded")
	}
	return s.events[len(s.events)-1]
}

func newTestHub() *Hub {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func presence(t *testing.T, r recorded) models.UserPresenceEvent {
	t.Helper()
	if r.event != models.EventUserPresence {
		t.Fatalf("event = %q, want %q", r.event, models.EventUserPresence)
	}
	p, ok := r.payload.(models.UserPresenceEvent)
	if !ok {
		t.Fatalf("payload type %T", r.payload)
	}
	return p
}

func TestPresenceBroadcastsOnConnectAndDisconnect(t *testing.T) {
	h := newTestHub()
	a, b := &recordSink{}, &recordSink{}

	h.Connect("conn-a", "alice", a)
	if p := presence(t, a.last(t)); !p.IsOnline || p.UserID != "alice" || p.TotalOnline != 1 {
		t.Fatalf("after first connect: %+v", p)
	}

	h.Connect("conn-b", "bob", b)
	if p := presence(t, a.last(t)); p.TotalOnline != 2 {
		t.Fatalf("alice sees total %d after bob connects, want 2", p.TotalOnline)
	}
	if p := presence(t, b.last(t)); p.TotalOnline != 2 || p.UserID != "bob" {
		t.Fatalf("bob's own connect event: %+v", p)
	}

	h.Disconnect("conn-a")
	p := presence(t, b.last(t))
	if p.IsOnline || p.UserID != "alice" || p.TotalOnline != 1 {
		t.Fatalf("after alice disconnects: %+v", p)
	}
}

func TestOnlineCountIsDistinctUsers(t *testing.T) {
	h := newTestHub()
	h.Connect("conn-1", "alice", &recordSink{})
	h.Connect("conn-2", "alice", &recordSink{})
	h.Connect("conn-3", "bob", &recordSink{})

	if got := h.OnlineCount(); got != 2 {
		t.Fatalf("online count = %d, want 2 (alice twice, bob once)", got)
	}

	h.Disconnect("conn-1")
	if got := h.OnlineCount(); got != 2 {
		t.Fatalf("online count = %d, want 2 (alice still has a connection)", got)
	}
	h.Disconnect("conn-2")
	if got := h.OnlineCount(); got != 1 {
		t.Fatalf("online count = %d, want 1", got)
	}
}

func TestPublishReachesOnlyGroupMembers(t *testing.T) {
	h := newTestHub()
	member, outsider := &recordSink{}, &recordSink{}
	h.Connect("conn-m", "alice", member)
	h.Connect("conn-o", "bob", outsider)
	h.JoinGroup("conn-m", ServerGroup(7))

	memberBefore := len(member.all())
	outsiderBefore := len(outsider.all())

	h.Publish(ServerGroup(7), models.EventMetricUpdate, models.MetricUpdateEvent{ServerID: 7, CPUUsage: 42})

	memberEvents := member.all()
	if len(memberEvents) != memberBefore+1 {
		t.Fatalf("member got %d new events, want 1", len(memberEvents)-memberBefore)
	}
	if memberEvents[len(memberEvents)-1].event != models.EventMetricUpdate {
		t.Fatalf("member last event = %q", memberEvents[len(memberEvents)-1].event)
	}
	if len(outsider.all()) != outsiderBefore {
		t.Fatal("outsider received a group event")
	}
}

func TestJoinAfterPublishMissesEvent(t *testing.T) {
	h := newTestHub()
	late := &recordSink{}
	h.Connect("conn-late", "alice", late)

	h.Publish(GroupAlerts, models.EventAlert, models.AlertEvent{ServerID: 1})
	h.JoinGroup("conn-late", GroupAlerts)

	for _, r := range late.all() {
		if r.event == models.EventAlert {
			t.Fatal("late joiner received an event published before joining")
		}
	}

	h.Publish(GroupAlerts, models.EventAlert, models.AlertEvent{ServerID: 2})
	if late.last(t).event != models.EventAlert {
		t.Fatal("member did not receive event published after joining")
	}
}

func TestDisconnectRemovesGroupMembership(t *testing.T) {
	h := newTestHub()
	s := &recordSink{}
	h.Connect("conn-1", "alice", s)
	h.JoinGroup("conn-1", GroupReports)
	h.Disconnect("conn-1")

	before := len(s.all())
	h.Publish(GroupReports, models.EventReportStatus, models.ReportStatusEvent{ReportID: 1})
	if len(s.all()) != before {
		t.Fatal("disconnected sink received a group event")
	}
}

func TestJoinGroupIgnoresUnknownConnection(t *testing.T) {
	h := newTestHub()
	h.JoinGroup("ghost", GroupAlerts)
	// A publish to the group must not deliver anywhere or panic.
	h.Publish(GroupAlerts, models.EventAlert, models.AlertEvent{ServerID: 1})
}

func TestPublishAllReachesEveryConnection(t *testing.T) {
	h := newTestHub()
	a, b := &recordSink{}, &recordSink{}
	h.Connect("conn-a", "alice", a)
	h.Connect("conn-b", "bob", b)

	h.PublishAll(models.EventMaintenanceAlert, models.MaintenanceAlertEvent{ServerID: 3})

	for name, s := range map[string]*recordSink{"a": a, "b": b} {
		if s.last(t).event != models.EventMaintenanceAlert {
			t.Fatalf("sink %s missed the broadcast", name)
		}
	}
}
