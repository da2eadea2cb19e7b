package reconcile

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dthul/discord-bot/internal/models"
)

type memberKey struct {
	kind models.PersonKind
	id   uint64
}

type memorySeries struct {
	seriesType string
	swissrpg   *uuid.UUID
}

type memoryState struct {
	nextSeries   models.EventSeriesID
	nextEvent    models.EventID
	nextMember   models.MemberID
	series       map[models.EventSeriesID]memorySeries
	events       map[models.EventID]EventFields
	bindings     map[models.EventRef]models.EventID
	members      map[memberKey]models.MemberID
	hosts        map[models.EventID]map[models.MemberID]struct{}
	participants map[models.EventID]map[models.MemberID]struct{}
}

func newMemoryState() *memoryState {
	return &memoryState{
		series:       make(map[models.EventSeriesID]memorySeries),
		events:       make(map[models.EventID]EventFields),
		bindings:     make(map[models.EventRef]models.EventID),
		members:      make(map[memberKey]models.MemberID),
		hosts:        make(map[models.EventID]map[models.MemberID]struct{}),
		participants: make(map[models.EventID]map[models.MemberID]struct{}),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	c.nextSeries, c.nextEvent, c.nextMember = s.nextSeries, s.nextEvent, s.nextMember
	for k, v := range s.series {
		if v.swissrpg != nil {
			link := *v.swissrpg
			v.swissrpg = &link
		}
		c.series[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.bindings {
		c.bindings[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	c.hosts = cloneSets(s.hosts)
	c.participants = cloneSets(s.participants)
	return c
}

func cloneSets(in map[models.EventID]map[models.MemberID]struct{}) map[models.EventID]map[models.MemberID]struct{} {
	out := make(map[models.EventID]map[models.MemberID]struct{}, len(in))
	for id, set := range in {
		cp := make(map[models.MemberID]struct{}, len(set))
		for m := range set {
			cp[m] = struct{}{}
		}
		out[id] = cp
	}
	return out
}

// MemoryStore is an in-memory Store. Transactions are serialized and work
// on a copy of the state that replaces it on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// WithinTx implements Store.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memoryTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// EventCount returns the number of canonical events.
func (m *MemoryStore) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.events)
}

// SeriesCount returns the number of canonical series.
func (m *MemoryStore) SeriesCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.series)
}

// BindingCount returns the number of source bindings.
func (m *MemoryStore) BindingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.bindings)
}

// Event returns the stored fields of an event.
func (m *MemoryStore) Event(id models.EventID) (EventFields, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.state.events[id]
	return ev, ok
}

// SwissRPGLink returns the SwissRPG series recorded on a canonical series.
func (m *MemoryStore) SwissRPGLink(id models.EventSeriesID) *uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.series[id].swissrpg
}

// Member returns the member id for an external person id.
func (m *MemoryStore) Member(kind models.PersonKind, externalID uint64) (models.MemberID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.members[memberKey{kind, externalID}]
	return id, ok
}

// Hosts returns the sorted host member ids of an event.
func (m *MemoryStore) Hosts(id models.EventID) []models.MemberID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedMembers(m.state.hosts[id])
}

// Participants returns the sorted participant member ids of an event.
func (m *MemoryStore) Participants(id models.EventID) []models.MemberID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedMembers(m.state.participants[id])
}

func sortedMembers(set map[models.MemberID]struct{}) []models.MemberID {
	out := make([]models.MemberID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) LockBinding(_ context.Context, ref models.EventRef) (*Binding, error) {
	id, ok := t.state.bindings[ref]
	if !ok {
		return nil, nil
	}
	return &Binding{EventID: id, SeriesID: t.state.events[id].SeriesID}, nil
}

func (t *memoryTx) SeriesForEvent(_ context.Context, ref models.EventRef) (models.EventSeriesID, bool, error) {
	id, ok := t.state.bindings[ref]
	if !ok {
		return 0, false, nil
	}
	return t.state.events[id].SeriesID, true, nil
}

func (t *memoryTx) SeriesForSwissRPGSeries(_ context.Context, link uuid.UUID) (models.EventSeriesID, bool, error) {
	for id, s := range t.state.series {
		if s.swissrpg != nil && *s.swissrpg == link {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *memoryTx) CreateSeries(_ context.Context, seriesType string) (models.EventSeriesID, error) {
	t.state.nextSeries++
	t.state.series[t.state.nextSeries] = memorySeries{seriesType: seriesType}
	return t.state.nextSeries, nil
}

func (t *memoryTx) LockSwissRPGLink(_ context.Context, id models.EventSeriesID) (*uuid.UUID, error) {
	return t.state.series[id].swissrpg, nil
}

func (t *memoryTx) SetSwissRPGLink(_ context.Context, id models.EventSeriesID, link uuid.UUID) error {
	s := t.state.series[id]
	s.swissrpg = &link
	t.state.series[id] = s
	return nil
}

func (t *memoryTx) InsertEvent(_ context.Context, fields EventFields) (models.EventID, error) {
	t.state.nextEvent++
	t.state.events[t.state.nextEvent] = fields
	return t.state.nextEvent, nil
}

func (t *memoryTx) UpdateEvent(_ context.Context, id models.EventID, fields EventFields) error {
	t.state.events[id] = fields
	return nil
}

func (t *memoryTx) InsertBinding(_ context.Context, id models.EventID, ev models.SourceEvent) error {
	t.state.bindings[ev.Ref()] = id
	return nil
}

func (t *memoryTx) GetOrCreateMember(_ context.Context, kind models.PersonKind, externalID uint64) (models.MemberID, error) {
	key := memberKey{kind, externalID}
	if id, ok := t.state.members[key]; ok {
		return id, nil
	}
	t.state.nextMember++
	t.state.members[key] = t.state.nextMember
	return t.state.nextMember, nil
}

func (t *memoryTx) AddHost(_ context.Context, id models.EventID, member models.MemberID) error {
	set, ok := t.state.hosts[id]
	if !ok {
		set = make(map[models.MemberID]struct{})
		t.state.hosts[id] = set
	}
	set[member] = struct{}{}
	return nil
}

func (t *memoryTx) ReplaceParticipants(_ context.Context, id models.EventID, members []models.MemberID) error {
	set := make(map[models.MemberID]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	t.state.participants[id] = set
	return nil
}
