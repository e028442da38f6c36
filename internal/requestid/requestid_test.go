package requestid

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx, id := New(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	id := FromContext(context.Background())
	assert.NotEmpty(t, id) // generates new UUID
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-123")
	assert.Equal(t, "test-123", FromContext(ctx))
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		assert.Equal(t, FromCtx(c), FromContext(c.UserContext()))
		return c.SendString(FromCtx(c))
	})

	req, _ := http.NewRequest("GET", "/", nil)
	req.Header.Set(Header, "client-id")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "client-id", resp.Header.Get(Header))

	req, _ = http.NewRequest("GET", "/", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(Header), 36)

	req, _ = http.NewRequest("GET", "/", nil)
	req.Header.Set(Header, strings.Repeat("x", 200))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(Header), 36)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Logger(WithRequestID(context.Background(), "abc"), zerolog.New(&buf))
	l.Info().Msg("hi")
	assert.Contains(t, buf.String(), `"request_id":"abc"`)
}
