package fleet

import (
	"log/slog"

	"arksync/backend/internal/sensor"
)

// command is applied on the supervisor goroutine. apply reports whether the
// fleet changed.
type command interface {
	apply(s *Supervisor) bool
}

type findCmd struct {
	serial string
	reply  chan findResult
}

type findResult struct {
	sensor sensor.Sensor
	ok     bool
}

func (c *findCmd) apply(s *Supervisor) bool {
	sn, ok := s.sensors[c.serial]
	c.reply <- findResult{sensor: sn, ok: ok}

	return false
}

type allCmd struct {
	reply chan []sensor.Sensor
}

func (c *allCmd) apply(s *Supervisor) bool {
	c.reply <- s.snapshot()
	return false
}

type upsertCmd struct {
	sensors []sensor.Sensor
}

func (c *upsertCmd) apply(s *Supervisor) bool {
	for _, sn := range c.sensors {
		s.upsert(sn)
	}

	return len(c.sensors) > 0
}

type removeCmd struct {
	serials []string
}

func (c *removeCmd) apply(s *Supervisor) bool {
	for _, serial := range c.serials {
		s.remove(serial)
	}

	return len(c.serials) > 0
}

type markUnreachableCmd struct {
	serials []string
}

func (c *markUnreachableCmd) apply(s *Supervisor) bool {
	changed := false

	for _, serial := range c.serials {
		sn, ok := s.sensors[serial]
		if !ok || sn.State == sensor.Unreachable {
			continue
		}

		sn.State = sensor.Unreachable
		s.sensors[serial] = sn
		changed = true

		s.l.Warn("sensor unreachable", slog.String("serialNumber", serial), slog.Time("lastActivity", sn.LastActivity))
	}

	return changed
}

type renameCmd struct {
	serial string
	name   string
	reply  chan bool
}

func (c *renameCmd) apply(s *Supervisor) bool {
	sn, ok := s.sensors[c.serial]
	if ok {
		sn.Name = c.name
		s.sensors[c.serial] = sn
	}

	c.reply <- ok

	return false
}
