package upstream

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// cliUserAgent mimics the Gemini CLI client fingerprint.
func cliUserAgent() string {
	return fmt.Sprintf("gemini-code-assist-cli/1.0.0 (%s; %s) %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func applyDefaultHeaders(req *http.Request, bearer, projectID string) {
	req.Header.Set("Content-Type", "application/json")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", cliUserAgent())
	gv := strings.TrimPrefix(runtime.Version(), "go")
	if gv == "" {
		gv = "unknown"
	}
	req.Header.Set("X-Goog-Api-Client", "gl-go/"+gv)
	req.Header.Set("Client-Metadata", "ideType=IDE_UNSPECIFIED,platform=PLATFORM_UNSPECIFIED,pluginType=GEMINI")
	if projectID = strings.TrimSpace(projectID); projectID != "" {
		req.Header.Set("X-Goog-User-Project", projectID)
	}
}
