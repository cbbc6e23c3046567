package upstream

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"
	log "github.com/sirupsen/logrus"
)

var onboardPollInterval = 2 * time.Second

// DiscoverProjectID resolves the Code Assist project for a credential that
// has none recorded. It asks loadCodeAssist first; when the account has no
// companion project yet it runs free-tier onboarding and polls until the
// long-running operation completes.
func (c *Client) DiscoverProjectID(ctx context.Context, call Call) (string, error) {
	metadata := []byte(`{"metadata":{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}}`)

	resp, err := c.LoadCodeAssist(ctx, call, metadata)
	if err != nil {
		return "", err
	}
	body, err := readAndClose(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("loadCodeAssist: upstream status %d", resp.StatusCode)
	}
	if proj := gjson.GetBytes(body, "cloudaicompanionProject").String(); proj != "" {
		return proj, nil
	}

	tier := gjson.GetBytes(body, `allowedTiers.#(isDefault==true).id`).String()
	if tier == "" {
		tier = "free-tier"
	}
	payload := []byte(fmt.Sprintf(`{"tierId":%q,"metadata":{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}}`, tier))
	log.WithField("tier", tier).Info("onboarding account for code assist")

	for {
		resp, err := c.OnboardUser(ctx, call, payload)
		if err != nil {
			return "", err
		}
		body, err := readAndClose(resp.Body)
		if err != nil {
			return "", err
		}
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("onboardUser: upstream status %d", resp.StatusCode)
		}
		if gjson.GetBytes(body, "done").Bool() {
			proj := gjson.GetBytes(body, "response.cloudaicompanionProject.id").String()
			if proj == "" {
				return "", fmt.Errorf("onboardUser: operation finished without a project id")
			}
			return proj, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(onboardPollInterval):
		}
	}
}

func readAndClose(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	return io.ReadAll(r)
}
