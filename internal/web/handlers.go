package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mark3labs/roundtable/internal/dialogue"
)

var errSessionNotFound = errors.New("session not found")

// snapshot resolves name to a live dialogue first, then to the store.
func (s *Server) snapshot(ctx context.Context, name string) (dialogue.Snapshot, error) {
	if d, ok := s.lookupLive(name); ok {
		return d.Snapshot(), nil
	}
	if s.store == nil {
		return dialogue.Snapshot{}, errSessionNotFound
	}
	state, err := s.store.LoadState(ctx, name)
	if err != nil {
		return dialogue.Snapshot{}, err
	}
	if state.Topic == "" && len(state.Messages) == 0 {
		return dialogue.Snapshot{}, errSessionNotFound
	}
	return state.Snapshot(), nil
}

func (s *Server) handleList(c *fiber.Ctx) error {
	names, err := s.sessionNames(c.UserContext())
	if err != nil {
		log.Error("failed to list sessions: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list sessions")
	}
	return c.JSON(fiber.Map{"sessions": names})
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	snap, err := s.snapshot(c.UserContext(), c.Params("name"))
	if err != nil {
		return snapshotError(c, err)
	}
	return c.JSON(snap)
}

func (s *Server) handleTally(c *fiber.Ctx) error {
	snap, err := s.snapshot(c.UserContext(), c.Params("name"))
	if err != nil {
		return snapshotError(c, err)
	}

	shares := make(map[dialogue.Stance]float64, len(snap.Tally))
	for st := range snap.Tally {
		shares[st] = snap.Tally.Share(st)
	}
	return c.JSON(fiber.Map{
		"session": snap.Session,
		"total":   snap.Tally.Total(),
		"counts":  snap.Tally,
		"shares":  shares,
	})
}

func snapshotError(c *fiber.Ctx, err error) error {
	if errors.Is(err, errSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	log.Error("failed to load session %s: %v", c.Params("name"), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load session"})
}
