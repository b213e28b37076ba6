package controller

import (
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	// Validation happens before any query, so no database is needed here
	ac := NewAutomationController(nil, log.New(io.Discard, "", 0))
	app := fiber.New()
	app.Post("/automations", ac.CreateAutomation)
	return app
}

func TestCreateAutomationValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			"malformed json",
			`{not json`,
		},
		{
			"missing name",
			`{"trigger_type":"welcome"}`,
		},
		{
			"unknown trigger type",
			`{"name":"A","trigger_type":"newsletter"}`,
		},
		{
			"custom trigger without event name",
			`{"name":"A","trigger_type":"custom"}`,
		},
		{
			"unknown delay unit",
			`{"name":"A","trigger_type":"welcome","steps":[
				{"step_order":0,"delay_value":1,"delay_unit":"weeks","subject":"Hi","html_content":"<p>x</p>"}
			]}`,
		},
		{
			"step missing subject",
			`{"name":"A","trigger_type":"welcome","steps":[
				{"step_order":0,"delay_value":0,"delay_unit":"minutes","html_content":"<p>x</p>"}
			]}`,
		},
		{
			"duplicate step order",
			`{"name":"A","trigger_type":"welcome","steps":[
				{"step_order":0,"delay_value":0,"delay_unit":"minutes","subject":"One","html_content":"<p>1</p>"},
				{"step_order":0,"delay_value":1,"delay_unit":"days","subject":"Two","html_content":"<p>2</p>"}
			]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)

			req := httptest.NewRequest("POST", "/automations", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}
