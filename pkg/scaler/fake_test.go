package scaler

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/scaled/pkg/config"
	"github.com/cuemby/scaled/pkg/controller"
	"github.com/cuemby/scaled/pkg/kv"
	"github.com/cuemby/scaled/pkg/log"
	"github.com/cuemby/scaled/pkg/profile"
	"github.com/cuemby/scaled/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

type containerSpec struct {
	cpu float64
	ram int64
}

// fakeController applies writes synchronously and accounts resources
// against a single cluster pool
type fakeController struct {
	mu       sync.Mutex
	targets  map[string]int
	specs    map[string]containerSpec
	totalCPU float64
	totalRAM int64

	running map[string]struct{}
	events  []string

	writes    []string
	added     []string
	restarted []string
	stopped   bool

	stoppedContainers [][2]string
	stoppedLabels     []map[string]string
	networks          []string
	stateful          []string

	failSetTarget      map[string]error
	failPrepareNetwork error
}

func newFakeController() *fakeController {
	return &fakeController{
		targets:       make(map[string]int),
		specs:         make(map[string]containerSpec),
		running:       make(map[string]struct{}),
		failSetTarget: make(map[string]error),
		totalCPU:      1000,
		totalRAM:      1 << 20,
	}
}

func (f *fakeController) setSpec(name string, cpu float64, ram int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs[name] = containerSpec{cpu: cpu, ram: ram}
}

func (f *fakeController) setPool(cpu float64, ram int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalCPU = cpu
	f.totalRAM = ram
}

func (f *fakeController) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeController) resetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

func (f *fakeController) GetTarget(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets[name]
}

func (f *fakeController) SetTarget(name string, target int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSetTarget[name]; err != nil {
		return err
	}
	f.writes = append(f.writes, fmt.Sprintf("%s=%d", name, target))
	f.targets[name] = target
	return nil
}

func (f *fakeController) freeCPULocked() float64 {
	free := f.totalCPU
	for name, target := range f.targets {
		free -= float64(target) * f.specs[name].cpu
	}
	return free
}

func (f *fakeController) freeRAMLocked() int64 {
	free := f.totalRAM
	for name, target := range f.targets {
		free -= int64(target) * f.specs[name].ram
	}
	return free
}

func (f *fakeController) FreeCPU() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freeCPULocked()
}

func (f *fakeController) FreeMemory() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freeRAMLocked()
}

func (f *fakeController) CPUInfo() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freeCPULocked(), f.totalCPU
}

func (f *fakeController) MemoryInfo() (int64, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freeRAMLocked(), f.totalRAM
}

func (f *fakeController) AddProfile(p controller.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, p.ServiceName())
	f.specs[p.ServiceName()] = containerSpec{cpu: p.Config().CPUCores, ram: p.Config().RAMMB}
	return nil
}

func (f *fakeController) Restart(p controller.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, p.ServiceName())
	return nil
}

func (f *fakeController) StopContainer(service, container string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stoppedContainers = append(f.stoppedContainers, [2]string{service, container})
	return nil
}

func (f *fakeController) StopContainers(labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	f.stoppedLabels = append(f.stoppedLabels, copied)
	return nil
}

func (f *fakeController) GetRunningContainerNames() map[string]struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make(map[string]struct{}, len(f.running))
	for name := range f.running {
		names[name] = struct{}{}
	}
	return names
}

func (f *fakeController) NewEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.events
	f.events = nil
	return events
}

func (f *fakeController) PrepareNetwork(service string, allowInternet bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrepareNetwork != nil {
		return f.failPrepareNetwork
	}
	f.networks = append(f.networks, service)
	return nil
}

func (f *fakeController) StartStatefulContainer(service, container string, spec types.ContainerConfig, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateful = append(f.stateful, service+"/"+container)
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

// memCatalog is an in-memory catalog.Store
type memCatalog struct {
	mu       sync.Mutex
	services map[string]*types.Service
	order    []string
	stages   map[string]types.ServiceStage
	disabled []string
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		services: make(map[string]*types.Service),
		stages:   make(map[string]types.ServiceStage),
	}
}

func (c *memCatalog) ListAllServices() ([]*types.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Service, 0, len(c.order))
	for _, name := range c.order {
		svc := *c.services[name]
		out = append(out, &svc)
	}
	return out, nil
}

func (c *memCatalog) GetService(name string) (*types.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	svc, ok := c.services[name]
	if !ok {
		return nil, fmt.Errorf("service not found: %s", name)
	}
	copied := *svc
	return &copied, nil
}

func (c *memCatalog) SaveService(service *types.Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.services[service.Name]; !ok {
		c.order = append(c.order, service.Name)
	}
	copied := *service
	c.services[service.Name] = &copied
	return nil
}

func (c *memCatalog) DeleteService(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.services, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *memCatalog) SetEnabled(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	svc, ok := c.services[name]
	if !ok {
		return fmt.Errorf("service not found: %s", name)
	}
	svc.Enabled = enabled
	if !enabled {
		c.disabled = append(c.disabled, name)
	}
	return nil
}

func (c *memCatalog) GetStage(name string) (types.ServiceStage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stage, ok := c.stages[name]; ok {
		return stage, nil
	}
	return types.StageOff, nil
}

func (c *memCatalog) SetStage(name string, stage types.ServiceStage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages[name] = stage
	return nil
}

func (c *memCatalog) Close() error { return nil }

// fakeQueue is a static-length work queue
type fakeQueue struct {
	mu     sync.Mutex
	length int
	err    error
}

func (q *fakeQueue) Length(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length, q.err
}

func (q *fakeQueue) setLength(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.length = n
}

// fakeStatusTable is an in-memory StatusTable
type fakeStatusTable struct {
	mu      sync.Mutex
	entries map[string]kv.StatusEntry
}

func newFakeStatusTable() *fakeStatusTable {
	return &fakeStatusTable{entries: make(map[string]kv.StatusEntry)}
}

func (t *fakeStatusTable) set(host string, entry kv.StatusEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[host] = entry
}

func (t *fakeStatusTable) has(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[host]
	return ok
}

func (t *fakeStatusTable) Items(ctx context.Context) (map[string]kv.StatusEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	items := make(map[string]kv.StatusEntry, len(t.entries))
	for host, entry := range t.entries {
		items[host] = entry
	}
	return items, nil
}

func (t *fakeStatusTable) Keys(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.entries))
	for host := range t.entries {
		keys = append(keys, host)
	}
	return keys, nil
}

func (t *fakeStatusTable) Pop(ctx context.Context, host string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, host)
	return nil
}

// fakeTimeoutQueue delivers messages over a channel
type fakeTimeoutQueue struct {
	ch chan []byte
}

func newFakeTimeoutQueue() *fakeTimeoutQueue {
	return &fakeTimeoutQueue{ch: make(chan []byte, 16)}
}

func (q *fakeTimeoutQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case data := <-q.ch:
		return data, nil
	case <-t.C:
		return nil, nil
	}
}

// testScaler bundles a scaler with its fakes
type testScaler struct {
	*Scaler
	ctrl    *fakeController
	catalog *memCatalog
	status  *fakeStatusTable
	timeout *fakeTimeoutQueue
	queues  map[string]*fakeQueue
}

func newTestScaler(t *testing.T) *testScaler {
	t.Helper()
	cfg := config.Default()
	ctrl := newFakeController()
	store := newMemCatalog()
	status := newFakeStatusTable()
	timeout := newFakeTimeoutQueue()
	queues := make(map[string]*fakeQueue)

	s := New(cfg, ctrl, store, status, timeout, func(service string) profile.Queue {
		if q, ok := queues[service]; ok {
			return q
		}
		q := &fakeQueue{}
		queues[service] = q
		return q
	})

	return &testScaler{
		Scaler:  s,
		ctrl:    ctrl,
		catalog: store,
		status:  status,
		timeout: timeout,
		queues:  queues,
	}
}

// addProfile registers a profile directly, bypassing the synchronizer
func (ts *testScaler) addProfile(t *testing.T, name string, cpu float64, ram int64, desired, running int, params profile.Params) *profile.Profile {
	t.Helper()
	if params.Queue == nil {
		q := &fakeQueue{}
		ts.queues[name] = q
		params.Queue = q
	}
	p := profile.New(name, types.ContainerConfig{Image: "cccs/" + name, CPUCores: cpu, RAMMB: ram}, params)
	p.DesiredInstances = desired
	p.RunningInstances = running
	p.LastUpdate = time.Now()
	if err := ts.registry.Add(p); err != nil {
		t.Fatalf("failed to add profile: %v", err)
	}
	ts.ctrl.setSpec(name, cpu, ram)
	return p
}
