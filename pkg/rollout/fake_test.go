package rollout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/fleetroll/pkg/drain"
	"github.com/cuemby/fleetroll/pkg/events"
	"github.com/cuemby/fleetroll/pkg/health"
	"github.com/cuemby/fleetroll/pkg/provisioner"
	"github.com/cuemby/fleetroll/pkg/storage"
	"github.com/cuemby/fleetroll/pkg/types"
)

// callLog records every collaborator call in order
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, call := range l.all() {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

// fakeTerraform models a fleet module: applying a state value replaces the
// running agents with the fleet configured for that value
type fakeTerraform struct {
	log *callLog

	running types.Agents
	fleets  map[string]types.Agents

	// unchanged lists the values a plan reports no changes for
	unchanged map[string]bool

	planErr      map[string]error
	applyErr     map[string]error
	applyVarsErr error

	pending string
}

func (f *fakeTerraform) Plan(ctx context.Context, vars map[string]string, planFile string) (bool, error) {
	value := vars["rollout_state"]
	f.log.add("plan %s %s", value, planFile)
	if err := f.planErr[value]; err != nil {
		return false, err
	}
	if planFile != "" {
		f.pending = value
	}
	return !f.unchanged[value], nil
}

func (f *fakeTerraform) Show(ctx context.Context, planFile string) (*types.ChangeSet, error) {
	f.log.add("show %s", planFile)
	return diffFleets(f.running, f.fleets[f.pending]), nil
}

func (f *fakeTerraform) Apply(ctx context.Context, planFile string) error {
	f.log.add("apply %s", planFile)
	if err := f.applyErr[f.pending]; err != nil {
		return err
	}
	f.running = f.fleets[f.pending]
	return nil
}

func (f *fakeTerraform) ApplyVars(ctx context.Context, vars map[string]string) error {
	value := vars["rollout_state"]
	f.log.add("apply -var %s", value)
	if f.applyVarsErr != nil {
		return f.applyVarsErr
	}
	f.running = f.fleets[value]
	return nil
}

func (f *fakeTerraform) Output(ctx context.Context) (map[string]json.RawMessage, error) {
	f.log.add("output")
	objects := make([]map[string]string, 0, len(f.running))
	for _, agent := range f.running {
		objects = append(objects, map[string]string{"id": agent.ID, "name": agent.Name})
	}
	raw, err := json.Marshal(objects)
	if err != nil {
		return nil, err
	}
	return map[string]json.RawMessage{"bamboo_agents": raw}, nil
}

// diffFleets builds the change set that replaces from with to, plus an
// unrelated update that must never be drained
func diffFleets(from, to types.Agents) *types.ChangeSet {
	cs := &types.ChangeSet{Changes: []types.ResourceChange{{
		Address: "aws_autoscaling_group.agents",
		Type:    "aws_autoscaling_group",
		Name:    "agents",
		Actions: types.Actions{types.ActionUpdate},
		Before:  map[string]interface{}{"id": "asg-1"},
	}}}
	for _, agent := range from.Difference(to) {
		cs.Changes = append(cs.Changes, types.ResourceChange{
			Address: "random_string.bamboo_agent_" + agent.ID,
			Type:    "random_string",
			Name:    "bamboo_agent_" + agent.ID,
			Actions: types.Actions{types.ActionDelete},
			Before:  map[string]interface{}{"id": agent.ID},
		})
	}
	for _, agent := range to.Difference(from) {
		cs.Changes = append(cs.Changes, types.ResourceChange{
			Address: "random_string.bamboo_agent_" + agent.ID,
			Type:    "random_string",
			Name:    "bamboo_agent_" + agent.ID,
			Actions: types.Actions{types.ActionCreate},
			After:   map[string]interface{}{"id": agent.ID},
		})
	}
	return cs
}

func fleet(ids ...string) types.Agents {
	agents := make(types.Agents, len(ids))
	for i, id := range ids {
		agents[i] = types.Agent{ID: id, Name: "bamboo-agent-" + id}
	}
	return agents
}

func newFakeTerraform(log *callLog) *fakeTerraform {
	return &fakeTerraform{
		log:     log,
		running: fleet("b1", "b2", "b3", "b4"),
		fleets: map[string]types.Agents{
			"all_blue":      fleet("b1", "b2", "b3", "b4"),
			"canary_green":  fleet("b2", "b3", "b4", "g1"),
			"half_and_half": fleet("b3", "b4", "g1", "g2"),
			"all_green":     fleet("g1", "g2", "g3", "g4"),
		},
		unchanged: map[string]bool{},
		planErr:   map[string]error{},
		applyErr:  map[string]error{},
	}
}

// recordingStopper logs every stop call
type recordingStopper struct {
	log *callLog
	err map[string]error
}

func (s *recordingStopper) Stop(ctx context.Context, agent string) error {
	s.log.add("stop %s", agent)
	return s.err[agent]
}

// scriptedMonitor returns the scripted verdicts in order; an exhausted
// script is healthy
type scriptedMonitor struct {
	log      *callLog
	verdicts []bool
	err      error
	calls    int
}

func (m *scriptedMonitor) Evaluate(ctx context.Context, agents types.Agents, timeout time.Duration) (health.Report, error) {
	m.log.add("evaluate %s", strings.Join(agents.Names(), ","))
	if m.err != nil {
		return health.Report{}, m.err
	}

	healthy := true
	if m.calls < len(m.verdicts) {
		healthy = m.verdicts[m.calls]
	}
	m.calls++

	if healthy {
		return health.Report{Healthy: true, Ready: agents.Names(), Message: "ready"}, nil
	}
	return health.Report{Healthy: false, NotReady: agents.Names(), Message: "agents never registered"}, nil
}

type fakeJournal struct {
	entries []storage.InFlight
	cleared int
}

func (j *fakeJournal) Record(entry storage.InFlight) error {
	j.entries = append(j.entries, entry)
	return nil
}

func (j *fakeJournal) Clear() error {
	j.cleared++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(event *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) eventTypes() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func toolError(op provisioner.Op) error {
	return &provisioner.Error{
		Op:         op,
		WorkingDir: "/srv/agents",
		Stderr:     "Error: creating EC2 Instance: UnauthorizedOperation",
		Err:        errors.New("exit status 1"),
	}
}

type harness struct {
	log       *callLog
	tf        *fakeTerraform
	stopper   *recordingStopper
	monitor   *scriptedMonitor
	journal   *fakeJournal
	publisher *recordingPublisher
	drainCfg  drain.Config
}

func newHarness() *harness {
	log := &callLog{}
	return &harness{
		log:       log,
		tf:        newFakeTerraform(log),
		stopper:   &recordingStopper{log: log, err: map[string]error{}},
		monitor:   &scriptedMonitor{log: log},
		journal:   &fakeJournal{},
		publisher: &recordingPublisher{},
		drainCfg:  drain.DefaultConfig(),
	}
}

func (h *harness) orchestrator() *Orchestrator {
	coordinator := drain.NewCoordinator(h.stopper, h.drainCfg)
	return NewOrchestrator(h.tf, coordinator, drain.DefaultSelector(), h.monitor, DefaultConfig()).
		WithEvents(h.publisher).
		WithJournal(h.journal)
}
