package wsgateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arcade/cadflight/internal/gateway"
)

func newPrepareKeyApp(t *testing.T, endpoint string, requireAssembly bool) (*fiber.App, *Gateway) {
	t.Helper()
	gw := New(nil, nil, nil, []string{"magnafpm"}, 64)
	app := fiber.New()
	path := "/probe"
	if requireAssembly {
		path = "/probe/:assembly"
	}
	app.Get(path, gw.prepareKey(endpoint, requireAssembly), func(c *fiber.Ctx) error {
		key, ok := c.Locals(keyLocal).(gateway.Key)
		require.True(t, ok, "prepareKey did not stash a gateway.Key")
		return c.JSON(fiber.Map{"endpoint": key.Endpoint, "assembly": key.Assembly})
	})
	return app, gw
}

func TestPrepareKeyRejectsUnknownAssembly(t *testing.T) {
	app, _ := newPrepareKeyApp(t, "visualize", true)
	req := httptest.NewRequest(http.MethodGet, "/probe/bogus", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPrepareKeyRejectsUnknownParameterGroup(t *testing.T) {
	app, _ := newPrepareKeyApp(t, "cncOverview", false)
	req := httptest.NewRequest(http.MethodGet, "/probe?bogus.x=1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPrepareKeyAcceptsValidAssemblyAndParams(t *testing.T) {
	app, _ := newPrepareKeyApp(t, "visualize", true)
	req := httptest.NewRequest(http.MethodGet, "/probe/rotor?magnafpm.r=1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{Type: TypeProgress, Detail: fiber.Map{"message": "cutting", "progress": 42}}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TypeProgress, decoded.Type)
	assert.Equal(t, map[string]any{"message": "cutting", "progress": float64(42)}, decoded.Detail)
}
