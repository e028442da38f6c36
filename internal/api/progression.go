package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/habittks/habit-tks/internal/models"
)

// GET /api/progression/rules
func (s *Server) listRules(c *fiber.Ctx) error {
	rules, err := s.svc.Progression.ListRules(c.UserContext(), s.userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	if rules == nil {
		rules = []models.ProgressionRule{}
	}
	return c.JSON(fiber.Map{"rules": rules})
}

// POST /api/progression/rules
func (s *Server) addRule(c *fiber.Ctx) error {
	var req RuleRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	rule := &models.ProgressionRule{
		UserID:   s.userID(c),
		FromTier: req.FromTier,
		ToTier:   req.ToTier,
		Condition: models.ProgressionCondition{
			Kind:      req.Condition.Type,
			Value:     req.Condition.Value,
			Timeframe: req.Condition.Timeframe,
		},
	}
	if err := s.svc.Progression.AddRule(c.UserContext(), rule); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rule)
}

// GET /api/progression/history
func (s *Server) history(c *fiber.Ctx) error {
	events, err := s.svc.Progression.History(c.UserContext(), s.userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	if events == nil {
		events = []models.ProgressionEvent{}
	}
	return c.JSON(fiber.Map{"events": events})
}
