package api

import "github.com/gofiber/fiber/v2"

// GET /api/analytics/summary?days=
func (s *Server) analyticsSummary(c *fiber.Ctx) error {
	sum, err := s.svc.Analytics.Summary(c.UserContext(), s.userID(c), c.QueryInt("days", 0))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sum)
}

// GET /api/analytics/habits/:id?days=
func (s *Server) habitAnalytics(c *fiber.Ctx) error {
	st, err := s.svc.Analytics.HabitStats(c.UserContext(), c.Params("id"), s.userID(c), c.QueryInt("days", 0))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(st)
}
