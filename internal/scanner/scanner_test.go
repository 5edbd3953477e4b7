package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/hydra/internal/connectors"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/events"
	"github.com/aristath/hydra/internal/signalstore"
)

type fakeConnector struct {
	name    string
	due     bool
	signals []domain.Signal
	polled  int
}

func (f *fakeConnector) Name() string              { return f.name }
func (f *fakeConnector) Category() domain.Category { return domain.CategoryMacro }
func (f *fakeConnector) Due(now time.Time) bool     { return f.due }
func (f *fakeConnector) Poll(ctx context.Context) []domain.Signal {
	f.polled++
	return f.signals
}
func (f *fakeConnector) State() domain.ConnectorState {
	return domain.ConnectorState{Name: f.name, Category: domain.CategoryMacro}
}

func sig(id string) domain.Signal {
	return domain.Signal{ID: id, Category: domain.CategoryMacro, Priority: domain.PriorityMedium, TTLHours: 1, DetectedAt: time.Now()}
}

func TestScan_SkipsConnectorsNotDue(t *testing.T) {
	due := &fakeConnector{name: "due", due: true, signals: []domain.Signal{sig("a")}}
	notDue := &fakeConnector{name: "not-due", due: false, signals: []domain.Signal{sig("b")}}

	store := signalstore.New()
	s := New([]connectors.Connector{due, notDue}, store, nil, zerolog.Nop())

	newSignals, total := s.Scan(context.Background())

	assert.Equal(t, 1, newSignals)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, due.polled)
	assert.Equal(t, 0, notDue.polled)
}

func TestScan_NoDueConnectors_EmitsNoEvent(t *testing.T) {
	notDue := &fakeConnector{name: "not-due", due: false}
	store := signalstore.New()
	em := events.NewManager(zerolog.Nop())
	ch, unsubscribe := em.Subscribe(4)
	defer unsubscribe()

	s := New([]connectors.Connector{notDue}, store, em, zerolog.Nop())
	newSignals, _ := s.Scan(context.Background())

	assert.Equal(t, 0, newSignals)
	select {
	case <-ch:
		t.Fatal("expected no event when nothing was inserted")
	default:
	}
}

func TestScan_DuplicateSignalAcrossConnectors_CountsOnce(t *testing.T) {
	c1 := &fakeConnector{name: "c1", due: true, signals: []domain.Signal{sig("dup")}}
	c2 := &fakeConnector{name: "c2", due: true, signals: []domain.Signal{sig("dup")}}

	store := signalstore.New()
	s := New([]connectors.Connector{c1, c2}, store, nil, zerolog.Nop())

	newSignals, total := s.Scan(context.Background())

	assert.Equal(t, 1, newSignals)
	assert.Equal(t, 1, total)
}

func TestConnectorStates_ReturnsOneEntryPerConnector(t *testing.T) {
	c1 := &fakeConnector{name: "c1"}
	c2 := &fakeConnector{name: "c2"}
	s := New([]connectors.Connector{c1, c2}, signalstore.New(), nil, zerolog.Nop())

	states := s.ConnectorStates()

	assert.Len(t, states, 2)
	assert.Equal(t, "c1", states[0].Name)
	assert.Equal(t, "c2", states[1].Name)
}
