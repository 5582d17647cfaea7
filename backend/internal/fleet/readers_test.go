package fleet

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"arksync/backend/internal/sensor"
	"arksync/backend/internal/telemetry"
)

type recordingPublisher struct {
	mu       sync.Mutex
	readings []telemetry.Reading
	states   []telemetry.StateChange
}

func (p *recordingPublisher) PublishReading(_ context.Context, r telemetry.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readings = append(p.readings, r)

	return nil
}

func (p *recordingPublisher) PublishState(_ context.Context, c telemetry.StateChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states = append(p.states, c)

	return nil
}

func (p *recordingPublisher) readingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.readings)
}

func (p *recordingPublisher) stateSeq(serial string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var seq []string

	for _, c := range p.states {
		if c.SerialNumber == serial {
			seq = append(seq, c.State)
		}
	}

	return seq
}

func TestReadersLifecycle(t *testing.T) {
	t.Parallel()

	_, client := startSupervisor(t, nil)
	sn, _ := newSensor(t, "DP065KS3")
	_ = client.Upsert(context.Background(), sn)

	pub := &recordingPublisher{}
	r := NewReaders(discard(), client, ReadersOptions{Publisher: pub, ReadInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if got := r.Running(); !slices.Equal(got, []string{"DP065KS3"}) {
		t.Fatalf("Running() = %v", got)
	}

	if refs := sn.Conn.Refs(); refs != 2 {
		t.Errorf("handle refs = %d, want 2 while reading", refs)
	}

	eventually(t, "a reading", func() bool { return pub.readingCount() > 0 })

	pub.mu.Lock()
	first := pub.readings[0]
	pub.mu.Unlock()

	if first.Value != 21.5 || first.Unit != "celsius" {
		t.Errorf("reading = %+v", first)
	}

	// Leaving Active stops the reader and gives back its reference.
	_ = client.MarkUnreachable(ctx, "DP065KS3")

	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if got := r.Running(); len(got) != 0 {
		t.Errorf("Running() = %v, want none", got)
	}

	eventually(t, "reader to release", func() bool { return sn.Conn.Refs() == 1 })

	_ = client.Remove(ctx, "DP065KS3")
	_ = r.Reconcile(ctx)

	if got := pub.stateSeq("DP065KS3"); !slices.Equal(got, []string{"active", "unreachable", telemetry.StateRemoved}) {
		t.Errorf("state changes = %v", got)
	}
}

func TestReadersStopWaits(t *testing.T) {
	t.Parallel()

	_, client := startSupervisor(t, nil)
	a, _ := newSensor(t, "A")
	b, _ := newSensor(t, "B")
	_ = client.Upsert(context.Background(), a, b)

	r := NewReaders(discard(), client, ReadersOptions{ReadInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		r.Run(ctx)
		close(done)
	}()

	eventually(t, "two readers", func() bool { return len(r.Running()) == 2 })

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if len(r.Running()) != 0 {
		t.Error("readers still registered after Run returned")
	}

	if a.Conn.Refs() != 1 || b.Conn.Refs() != 1 {
		t.Errorf("refs = %d, %d, want readers to have released", a.Conn.Refs(), b.Conn.Refs())
	}
}

func TestReadersRestartOnNewConnection(t *testing.T) {
	t.Parallel()

	_, client := startSupervisor(t, nil)
	first, _ := newSensor(t, "DP065KS3")
	_ = client.Upsert(context.Background(), first)

	r := NewReaders(discard(), client, ReadersOptions{ReadInterval: time.Hour})
	t.Cleanup(r.Stop)

	_ = r.Reconcile(context.Background())

	second, _ := newSensor(t, "DP065KS3")
	_ = client.Upsert(context.Background(), second)
	_ = r.Reconcile(context.Background())

	eventually(t, "old reader to release", func() bool { return first.Conn.Closed() })

	if second.Conn.Refs() != 2 {
		t.Errorf("new handle refs = %d, want 2", second.Conn.Refs())
	}
}

func TestReadersNudgedByHealthcheck(t *testing.T) {
	t.Parallel()

	_, client := startSupervisor(t, nil)
	sn, _ := newSensor(t, "DP065KS3")
	_ = client.Upsert(context.Background(), sn)

	// Only a nudge can trigger the second reconcile in time.
	r := NewReaders(discard(), client, ReadersOptions{ReconcileInterval: time.Hour, ReadInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		r.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	eventually(t, "a reader", func() bool { return len(r.Running()) == 1 })

	hc := NewHealthcheck(discard(), client, HealthcheckOptions{
		Probe:    func(context.Context, sensor.Sensor) error { return errors.New("no answer") },
		OnDemote: r.Nudge,
	})

	if err := hc.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}

	eventually(t, "reader to stop", func() bool { return len(r.Running()) == 0 })
	eventually(t, "reader to release", func() bool { return sn.Conn.Refs() == 1 })
}

func TestNudgeNeverBlocks(t *testing.T) {
	t.Parallel()

	_, client := startSupervisor(t, nil)
	r := NewReaders(discard(), client, ReadersOptions{})

	// Nobody is running the readers, so only the first nudge is buffered.
	for range 3 {
		r.Nudge()
	}

	if len(r.wake) != 1 {
		t.Errorf("pending nudges = %d, want 1", len(r.wake))
	}
}
