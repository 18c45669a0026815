package validation

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-factory/backend/internal/api/apierror"
)

func newApp(maxLen int) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxTextLength: maxLen, TextRoutes: []string{"/api/v1/nlp/"}}))
	app.Post("/api/v1/nlp/analyze", func(c *fiber.Ctx) error {
		text, _ := Text(c)
		return c.SendString(text)
	})
	app.Post("/api/v1/platforms/build", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	return app
}

func post(t *testing.T, app *fiber.App, path, contentType, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestValidTextReachesHandlerTrimmed(t *testing.T) {
	status, body := post(t, newApp(100), "/api/v1/nlp/analyze", "application/json", `{"text": "  Build a clinic portal \u0000 "}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Build a clinic portal", body)
}

func TestRejectedTextBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing", body: `{}`},
		{name: "not a string", body: `{"text": 42}`},
		{name: "blank", body: `{"text": "   \n\t "}`},
		{name: "only markup", body: `{"text": "<p> </p><br>"}`},
		{name: "too long", body: `{"text": "` + strings.Repeat("a", 11) + `"}`},
		{name: "malformed json", body: `{"text": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := post(t, newApp(10), "/api/v1/nlp/analyze", "application/json", tc.body)
			assert.Equal(t, fiber.StatusBadRequest, status)

			var e apierror.Body
			require.NoError(t, json.Unmarshal([]byte(body), &e))
			assert.Equal(t, apierror.CodeValidation, e.Code)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestLengthIsCountedInRunes(t *testing.T) {
	arabic := strings.Repeat("ب", 10)
	status, body := post(t, newApp(10), "/api/v1/nlp/analyze", "application/json", `{"text": "`+arabic+`"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, arabic, body)
}

func TestUnsupportedContentType(t *testing.T) {
	status, body := post(t, newApp(100), "/api/v1/nlp/analyze", "text/plain", "hello")
	assert.Equal(t, fiber.StatusUnsupportedMediaType, status)
	assert.Contains(t, body, apierror.CodeUnsupportedMedia)
}

func TestRoutesWithoutTextAreNotInspected(t *testing.T) {
	status, _ := post(t, newApp(100), "/api/v1/platforms/build", "application/json", `{"name": "Shop"}`)
	assert.Equal(t, fiber.StatusAccepted, status)
}

func TestCleanReducesMarkupToText(t *testing.T) {
	raw := `<div><h1>Clinic portal</h1><p>Patients   book <b>appointments</b>.</p><script>alert(1)</script><ul><li>Billing</li><li>Records</li></ul>Line<br>break</div>`

	text, err := Clean(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, "Clinic portal\nPatients book appointments.\nBilling\nRecords\nLine\nbreak", text)
}

func TestCleanLeavesComparisonsAlone(t *testing.T) {
	text, err := Clean("budget < 5000 and users > 100", 0)
	require.NoError(t, err)
	assert.Equal(t, "budget < 5000 and users > 100", text)
}

func TestCleanKeepsTypeNotationThatLooksLikeTags(t *testing.T) {
	for _, raw := range []string{
		"Expose a List<Patient> endpoint for the hospital",
		"Map<String, Account> per bank branch",
		"Render <b>bold</b> next to Optional<Claim>",
		"age<65 and score>3",
	} {
		text, err := Clean(raw, 0)
		require.NoError(t, err)
		assert.Equal(t, raw, text)
	}
}
