package common

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"

	"vouch/e2e/harness"
)

func RegisterSteps(ctx *godog.ScenarioContext, tc *harness.TestContext) {
	ctx.Step(`^the vouch API is reachable$`, func(c context.Context) error {
		if err := tc.Do(c, http.MethodGet, "/healthz", "", "", nil); err != nil {
			return err
		}
		if tc.LastStatus != http.StatusOK {
			return fmt.Errorf("health check returned %d: %s", tc.LastStatus, tc.LastBody)
		}
		return nil
	})

	ctx.Step(`^the response status should be (\d+)$`, func(want string) error {
		code, err := strconv.Atoi(want)
		if err != nil {
			return err
		}
		if tc.LastStatus != code {
			return fmt.Errorf("expected status %d, got %d: %s", code, tc.LastStatus, tc.LastBody)
		}
		return nil
	})

	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, func(field, want string) error {
		got, err := tc.Field(field)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("expected %s=%q, got %q", field, want, got)
		}
		return nil
	})
}
