package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

	"arksync/backend/internal/sensor"
	"arksync/backend/pkg/serialport"
)

func TestHealthcheckCycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		unreachable bool          // state before the cycle
		silentFor   time.Duration // time since last activity
		probeFails  bool
		wantState   sensor.State
		wantRemoved bool
		wantFresh   bool // LastActivity refreshed
	}{
		{name: "active answers", silentFor: time.Minute, wantState: sensor.Active, wantFresh: true},
		{name: "active fails", silentFor: 10 * time.Second, probeFails: true, wantState: sensor.Unreachable},
		{name: "active fails past grace is only demoted", silentFor: 5 * time.Minute, probeFails: true, wantState: sensor.Unreachable},
		{name: "unreachable fails within grace", unreachable: true, silentFor: time.Minute, probeFails: true, wantState: sensor.Unreachable},
		{name: "unreachable fails past grace", unreachable: true, silentFor: 3 * time.Minute, probeFails: true, wantRemoved: true},
		{name: "unreachable recovers", unreachable: true, silentFor: 90 * time.Second, wantState: sensor.Active, wantFresh: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			_, client := startSupervisor(t, clock)
			sn, circuit := newSensor(t, "DP065KS3")

			_ = client.Upsert(context.Background(), sn)
			if tt.unreachable {
				_ = client.MarkUnreachable(context.Background(), "DP065KS3")
			}

			// LastActivity is stamped when the supervisor applies the upsert.
			settle(t, client)

			before := clock.Now()
			clock.Advance(tt.silentFor)
			circuit.SetOffline(tt.probeFails)

			h := NewHealthcheck(discard(), client, HealthcheckOptions{})
			h.now = clock.Now

			if err := h.Cycle(context.Background()); err != nil {
				t.Fatalf("Cycle() error = %v", err)
			}

			got, ok, err := client.Find(context.Background(), "DP065KS3")
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}

			if tt.wantRemoved {
				if ok {
					t.Fatalf("sensor still present with state %s", got.State)
				}

				if !circuit.Closed() {
					t.Error("removed sensor's connection should be closed")
				}

				return
			}

			if !ok {
				t.Fatal("sensor removed unexpectedly")
			}

			if got.State != tt.wantState {
				t.Errorf("State = %s, want %s", got.State, tt.wantState)
			}

			fresh := got.LastActivity.Equal(clock.Now())
			if fresh != tt.wantFresh {
				t.Errorf("LastActivity = %v (before %v, now %v), want fresh=%v", got.LastActivity, before, clock.Now(), tt.wantFresh)
			}
		})
	}
}

func TestStatusProbeWithoutConnection(t *testing.T) {
	t.Parallel()

	err := StatusProbe(context.Background(), sensor.Sensor{SerialNumber: "x"})
	if !errors.Is(err, errNoConnection) {
		t.Errorf("StatusProbe() error = %v, want errNoConnection", err)
	}
}

func TestHealthcheckCustomProbe(t *testing.T) {
	t.Parallel()

	_, client := startSupervisor(t, nil)
	a, _ := newSensor(t, "A")
	b, _ := newSensor(t, "B")
	_ = client.Upsert(context.Background(), a, b)

	var probed []string

	h := NewHealthcheck(discard(), client, HealthcheckOptions{
		Probe: func(_ context.Context, s sensor.Sensor) error {
			probed = append(probed, s.SerialNumber)
			if s.SerialNumber == "B" {
				return &serialport.TransportError{Op: "read", Port: "p", Err: serialport.ErrTimeout}
			}

			return nil
		},
	})

	if err := h.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}

	if len(probed) != 2 {
		t.Errorf("probed = %v, want both sensors", probed)
	}

	if got := mustFind(t, client, "B"); got.State != sensor.Unreachable {
		t.Errorf("B state = %s, want unreachable", got.State)
	}
}
