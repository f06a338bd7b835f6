package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"anipipe/internal/catalog"
	"anipipe/internal/discovery"
	"anipipe/internal/queue"
)

type fakeLister struct {
	snapshot catalog.Snapshot
	err      error
}

func (f *fakeLister) Snapshot(ctx context.Context) (catalog.Snapshot, error) {
	return f.snapshot, f.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func thresholds() queue.Thresholds {
	return queue.Thresholds{
		SmallFileCount:  10,
		SmallSizeBytes:  5 << 30,
		MediumFileCount: 50,
		MediumSizeBytes: 20 << 30,
	}
}

func newQueue(t *testing.T) *queue.Manager {
	t.Helper()
	m, err := queue.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newReconciler(t *testing.T, lister catalog.Lister, q *queue.Manager, granularity string, clock *fakeClock) *discovery.Reconciler {
	t.Helper()
	opts := discovery.Options{
		Lister:          lister,
		Queue:           q,
		Thresholds:      thresholds(),
		Granularity:     granularity,
		StabilityWindow: 10 * time.Minute,
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	r, err := discovery.NewReconciler(opts)
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	return r
}

func TestItemModeAssignsPriorities(t *testing.T) {
	lister := &fakeLister{snapshot: catalog.Snapshot{Entries: []catalog.Entry{
		{Path: "a/small.mp4", Size: 10 << 20},
		{Path: "b/small2.mp4", Size: 20 << 20},
		{Path: "c/large.mp4", Size: 5_000_000_000},
	}}}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityItem, nil)

	if added := r.Reconcile(context.Background(), false); added != 3 {
		t.Fatalf("expected 3 new items, got %d", added)
	}

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	third, _ := q.Dequeue()
	if first.Identity != "a/small.mp4" || second.Identity != "b/small2.mp4" {
		t.Fatalf("small items should dequeue first: %s, %s", first.Identity, second.Identity)
	}
	if third.Identity != "c/large.mp4" || third.Priority != queue.PriorityLow {
		t.Fatalf("large item should be low priority: %+v", third)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	lister := &fakeLister{snapshot: catalog.Snapshot{Entries: []catalog.Entry{
		{Path: "s/ep01.mp4", Size: 100},
		{Path: "s/ep02.mp4", Size: 100},
	}}}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityItem, nil)

	if added := r.Reconcile(context.Background(), false); added != 2 {
		t.Fatalf("first run added %d", added)
	}
	if added := r.Reconcile(context.Background(), false); added != 0 {
		t.Fatalf("unchanged catalog re-enqueued %d items", added)
	}
}

func TestItemModeSkipsProcessed(t *testing.T) {
	lister := &fakeLister{snapshot: catalog.Snapshot{Entries: []catalog.Entry{
		{Path: "s/ep01.mp4", Size: 100},
	}}}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityItem, nil)

	r.Reconcile(context.Background(), false)
	if _, err := q.Dequeue(); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkCompleted("s/ep01.mp4"); err != nil {
		t.Fatal(err)
	}

	if added := r.Reconcile(context.Background(), false); added != 0 {
		t.Fatalf("processed identity re-enqueued: %d", added)
	}
}

func TestListingFailureReturnsZero(t *testing.T) {
	lister := &fakeLister{err: errors.New("cli timeout")}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityItem, nil)

	if added := r.Reconcile(context.Background(), false); added != 0 {
		t.Fatalf("listing failure should add nothing, got %d", added)
	}
	if snap := q.Snapshot(1); snap.QueueSize != 0 {
		t.Fatalf("queue should stay empty, size %d", snap.QueueSize)
	}
}

func folderSnapshot(size int64) catalog.Snapshot {
	return catalog.Snapshot{Entries: []catalog.Entry{
		{Path: "show/ep01.mp4", Size: size},
		{Path: "show/ep02.mp4", Size: size},
	}}
}

func TestStabilityGateRequiresDwell(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
	lister := &fakeLister{snapshot: folderSnapshot(100)}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityFolder, clock)

	// First sighting starts the dwell clock.
	if added := r.Reconcile(context.Background(), false); added != 0 {
		t.Fatalf("folder enqueued before dwell: %d", added)
	}
	clock.Advance(5 * time.Minute)
	if added := r.Reconcile(context.Background(), false); added != 0 {
		t.Fatalf("folder enqueued mid-dwell: %d", added)
	}
	clock.Advance(6 * time.Minute)
	if added := r.Reconcile(context.Background(), false); added != 1 {
		t.Fatalf("stable folder not enqueued: %d", added)
	}

	// Exactly once.
	clock.Advance(time.Hour)
	if added := r.Reconcile(context.Background(), false); added != 0 {
		t.Fatalf("stable folder enqueued twice: %d", added)
	}
}

func TestHashChangeResetsDwell(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
	lister := &fakeLister{snapshot: folderSnapshot(100)}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityFolder, clock)

	r.Reconcile(context.Background(), false)
	clock.Advance(9 * time.Minute)

	// Upload still in progress: a file grew.
	lister.snapshot = folderSnapshot(200)
	if added := r.Reconcile(context.Background(), false); added != 0 {
		t.Fatalf("changed folder enqueued: %d", added)
	}

	// Dwell restarts from the change, not the first sighting.
	clock.Advance(5 * time.Minute)
	if added := r.Reconcile(context.Background(), false); added != 0 {
		t.Fatalf("folder enqueued before new dwell elapsed: %d", added)
	}
	clock.Advance(6 * time.Minute)
	if added := r.Reconcile(context.Background(), false); added != 1 {
		t.Fatalf("restabilized folder not enqueued: %d", added)
	}
}

func TestEverChangingFolderNeverEnqueued(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
	lister := &fakeLister{snapshot: folderSnapshot(1)}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityFolder, clock)

	for i := int64(2); i < 20; i++ {
		lister.snapshot = folderSnapshot(i)
		if added := r.Reconcile(context.Background(), false); added != 0 {
			t.Fatalf("unstable folder enqueued on pass %d", i)
		}
		clock.Advance(15 * time.Minute)
	}
}

func TestBackfillBypassesGate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
	lister := &fakeLister{snapshot: folderSnapshot(100)}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityFolder, clock)

	if added := r.Reconcile(context.Background(), true); added != 1 {
		t.Fatalf("backfill should enqueue immediately, got %d", added)
	}
}

func TestFolderPriorityFromAggregate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
	snapshot := catalog.Snapshot{}
	for i := 0; i < 60; i++ {
		snapshot.Entries = append(snapshot.Entries, catalog.Entry{
			Path: "big/ep" + twoDigit(i) + ".mp4",
			Size: 1 << 20,
		})
	}
	lister := &fakeLister{snapshot: snapshot}
	q := newQueue(t)
	r := newReconciler(t, lister, q, discovery.GranularityFolder, clock)

	if added := r.Reconcile(context.Background(), true); added != 1 {
		t.Fatalf("expected 1 folder enqueued, got %d", added)
	}
	item, _ := q.Dequeue()
	if item.FileCount != 60 || item.Priority != queue.PriorityLow {
		t.Fatalf("unexpected folder item: %+v", item)
	}
}

func twoDigit(i int) string {
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}
