package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/habittks/habit-tks/internal/habit"
	"github.com/habittks/habit-tks/internal/models"
)

// GET /api/habits?tier=&active=
func (s *Server) listHabits(c *fiber.Ctx) error {
	tier := models.Tier(c.Query("tier"))
	habits, err := s.svc.Habits.ListHabits(c.UserContext(), s.userID(c), tier, c.QueryBool("active", false))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(HabitListResponse{Habits: habits, Total: len(habits)})
}

// POST /api/habits
func (s *Server) createHabit(c *fiber.Ctx) error {
	var req CreateHabitRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}

	cr := habit.CreateRequest{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		Tier:           req.Tier,
		Frequency:      req.Frequency,
		ReminderTime:   req.ReminderTime,
		Notes:          req.Notes,
		Priority:       req.Priority,
		StreakTracking: true,
		SkipAllowed:    req.SkipAllowed,
	}
	if req.StreakTracking != nil {
		cr.StreakTracking = *req.StreakTracking
	}
	if req.StartDate != nil {
		cr.StartDate = *req.StartDate
	}

	h, err := s.svc.Habits.CreateHabit(c.UserContext(), s.userID(c), cr)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(h)
}

// GET /api/habits/:id
func (s *Server) getHabit(c *fiber.Ctx) error {
	h, err := s.svc.Habits.GetHabit(c.UserContext(), c.Params("id"), s.userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(h)
}

// PUT /api/habits/:id
func (s *Server) updateHabit(c *fiber.Ctx) error {
	var req UpdateHabitRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	h, err := s.svc.Habits.UpdateHabit(c.UserContext(), c.Params("id"), s.userID(c), habit.UpdateRequest{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		Frequency:      req.Frequency,
		ReminderTime:   req.ReminderTime,
		Notes:          req.Notes,
		Priority:       req.Priority,
		StreakTracking: req.StreakTracking,
		SkipAllowed:    req.SkipAllowed,
		IsActive:       req.IsActive,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(h)
}

// DELETE /api/habits/:id
func (s *Server) deleteHabit(c *fiber.Ctx) error {
	if err := s.svc.Habits.DeleteHabit(c.UserContext(), c.Params("id"), s.userID(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /api/habits/:id/complete
func (s *Server) completeHabit(c *fiber.Ctx) error {
	var req CompleteHabitRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}

	cr := habit.CompleteRequest{Notes: req.Notes}
	if req.Metrics != nil {
		cr.Metrics = &models.CompletionMetrics{
			Duration:       req.Metrics.Duration,
			Intensity:      req.Metrics.Intensity,
			AdditionalData: req.Metrics.AdditionalData,
		}
	}

	res, err := s.svc.Habits.CompleteHabit(c.UserContext(), c.Params("id"), s.userID(c), cr)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(CompleteHabitResponse{
		Completion:   res.Completion,
		Streak:       res.Streak,
		TierUnlocked: res.NewTier != "",
		NewTier:      res.NewTier,
	})
}

// POST /api/habits/:id/skip
func (s *Server) skipHabit(c *fiber.Ctx) error {
	var req SkipHabitRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	res, err := s.svc.Habits.SkipHabit(c.UserContext(), c.Params("id"), s.userID(c), habit.SkipRequest{Reason: req.Reason})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SkipHabitResponse{
		Skip:       res.Skip,
		Downgraded: res.NewTier != "",
		NewTier:    res.NewTier,
	})
}

// GET /api/habits/:id/completions?limit=
func (s *Server) listCompletions(c *fiber.Ctx) error {
	completions, err := s.svc.Habits.ListCompletions(c.UserContext(), c.Params("id"), s.userID(c), c.QueryInt("limit", 50))
	if err != nil {
		return s.fail(c, err)
	}
	if completions == nil {
		completions = []*models.Completion{}
	}
	return c.JSON(CompletionListResponse{Completions: completions, Total: len(completions)})
}
