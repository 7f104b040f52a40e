package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/cucumber/godog"

	"vouch/e2e/harness"
)

// pngHeader is enough for the server to accept the part as image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n")

// sampleData satisfies each built-in type's required fields.
var sampleData = map[string]map[string]string{
	"identity":   {"full_name": "Ada Lovelace", "date_of_birth": "1990-12-10", "document_number": "X1234567"},
	"photo":      {},
	"employment": {"employer": "Analytical Engines Ltd", "job_title": "Engineer"},
	"education":  {"institution": "University of London", "degree": "BSc Mathematics"},
}

func RegisterSteps(ctx *godog.ScenarioContext, tc *harness.TestContext) {
	ctx.Step(`^I am a new user$`, func() error {
		tc.Reset()
		return nil
	})

	ctx.Step(`^I submit an? "([^"]*)" verification with (\d+) documents?$`, func(c context.Context, vType string, docs int) error {
		return submit(c, tc, vType, docs)
	})

	ctx.Step(`^I submit an? "([^"]*)" verification with (\d+) documents? (\d+) times$`, func(c context.Context, vType string, docs, times int) error {
		for range times {
			if err := submit(c, tc, vType, docs); err != nil {
				return err
			}
		}
		return nil
	})

	ctx.Step(`^an admin approves my latest request$`, func(c context.Context) error {
		return review(c, tc, "approve", map[string]string{"notes": "checked by e2e"})
	})

	ctx.Step(`^an admin rejects my latest request with reason "([^"]*)"$`, func(c context.Context, reason string) error {
		return review(c, tc, "reject", map[string]string{"reason": reason})
	})

	ctx.Step(`^I list pending requests$`, func(c context.Context) error {
		token, err := tc.UserToken()
		if err != nil {
			return err
		}
		return tc.Do(c, http.MethodGet, "/admin/verifications/pending", token, "", nil)
	})

	ctx.Step(`^an admin resets my submission budget$`, func(c context.Context) error {
		token, err := tc.AdminToken()
		if err != nil {
			return err
		}
		return tc.Do(c, http.MethodPost, "/admin/ratelimit/"+tc.UserID+"/reset", token, "", nil)
	})

	ctx.Step(`^my "([^"]*)" verification state should be "([^"]*)"$`, func(c context.Context, vType, want string) error {
		token, err := tc.UserToken()
		if err != nil {
			return err
		}
		if err := tc.Do(c, http.MethodGet, "/verifications/status", token, "", nil); err != nil {
			return err
		}
		var body struct {
			Types []struct {
				Type  string `json:"verification_type"`
				State string `json:"state"`
			} `json:"types"`
		}
		if err := json.Unmarshal(tc.LastBody, &body); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		for _, ts := range body.Types {
			if ts.Type == vType {
				if ts.State != want {
					return fmt.Errorf("expected %s state %q, got %q", vType, want, ts.State)
				}
				return nil
			}
		}
		return fmt.Errorf("type %s missing from status: %s", vType, tc.LastBody)
	})
}

func submit(ctx context.Context, tc *harness.TestContext, vType string, docs int) error {
	data, ok := sampleData[vType]
	if !ok {
		return fmt.Errorf("no sample data for type %q", vType)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("verification_type", vType); err != nil {
		return err
	}
	if err := mw.WriteField("data", string(encoded)); err != nil {
		return err
	}
	for i := range docs {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="documents"; filename="doc-%d.png"`, i))
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := part.Write(pngHeader); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	token, err := tc.UserToken()
	if err != nil {
		return err
	}
	if err := tc.Do(ctx, http.MethodPost, "/verifications", token, mw.FormDataContentType(), &body); err != nil {
		return err
	}
	if tc.LastStatus == http.StatusCreated {
		if tc.LastRequestID, err = tc.Field("id"); err != nil {
			return err
		}
	}
	return nil
}

func review(ctx context.Context, tc *harness.TestContext, decision string, payload map[string]string) error {
	if tc.LastRequestID == "" {
		return fmt.Errorf("no request has been created in this scenario")
	}
	token, err := tc.AdminToken()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	path := "/admin/verifications/" + tc.LastRequestID + "/" + decision
	return tc.Do(ctx, http.MethodPost, path, token, "application/json", strings.NewReader(string(encoded)))
}
