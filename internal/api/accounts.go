package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/habittks/habit-tks/internal/models"
	"github.com/habittks/habit-tks/internal/setup"
	"github.com/habittks/habit-tks/internal/user"
)

// POST /api/users
func (s *Server) createUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	u, err := s.svc.Users.CreateUser(c.UserContext(), user.CreateRequest{ID: req.ID, Email: req.Email, Name: req.Name})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

// GET /api/users/me
func (s *Server) me(c *fiber.Ctx) error {
	u, err := s.svc.Users.GetUser(c.UserContext(), s.userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(u)
}

// GET /api/users/me/stats
func (s *Server) myStats(c *fiber.Ctx) error {
	st, err := s.svc.Users.Stats(c.UserContext(), s.userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(st)
}

// PUT /api/users/me/settings
func (s *Server) updateSettings(c *fiber.Ctx) error {
	var req SettingsRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	u, err := s.svc.Users.UpdateSettings(c.UserContext(), s.userID(c), user.SettingsUpdate{
		Theme:           req.Theme,
		Notifications:   req.Notifications,
		StrictMode:      req.StrictMode,
		AutoProgression: req.AutoProgression,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(u)
}

// DELETE /api/users/me
func (s *Server) deleteMe(c *fiber.Ctx) error {
	id := s.userID(c)
	if err := s.svc.Users.DeleteUser(c.UserContext(), id); err != nil {
		return s.fail(c, err)
	}
	s.svc.Habits.ForgetUser(id)
	return c.SendStatus(fiber.StatusNoContent)
}

// DemoUserResponse is the response for POST /api/setup/demo-user.
type DemoUserResponse struct {
	User    *models.User  `json:"user"`
	Created bool          `json:"created"`
	Setup   *setup.Result `json:"setup,omitempty"`
}

// POST /api/setup/demo-user creates the mock account if needed and seeds it
// when it has no active habits.
func (s *Server) setupDemoUser(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u, created, err := s.svc.Users.EnsureDemoUser(ctx, s.userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	active, err := s.svc.Habits.ListHabits(ctx, u.ID, "", true)
	if err != nil {
		return s.fail(c, err)
	}

	resp := DemoUserResponse{User: u, Created: created}
	if len(active) == 0 {
		if resp.Setup, err = s.svc.Setup.SetupAccount(ctx, u.ID); err != nil {
			return s.fail(c, err)
		}
		if resp.User, err = s.svc.Users.GetUser(ctx, u.ID); err != nil {
			return s.fail(c, err)
		}
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(resp)
}

// POST /api/setup/account
func (s *Server) setupAccount(c *fiber.Ctx) error {
	res, err := s.svc.Setup.SetupAccount(c.UserContext(), s.userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// POST /api/setup/reset
func (s *Server) resetAccount(c *fiber.Ctx) error {
	msg, err := s.svc.Setup.ResetAccount(c.UserContext(), s.userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(MessageResponse{Message: msg, Tier: models.TierBaseline})
}

// POST /api/setup/unlock/:tier
func (s *Server) unlockTier(c *fiber.Ctx) error {
	tier := models.Tier(c.Params("tier"))
	msg, err := s.svc.Setup.UnlockTier(c.UserContext(), s.userID(c), tier)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(MessageResponse{Message: msg, Tier: tier})
}
