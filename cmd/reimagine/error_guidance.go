package main

import (
	"context"
	"errors"
	"net"

	"reimagine/internal/api"
	"reimagine/internal/provider"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case api.CodeResourceExhausted:
			lines = append(lines, "hint: a reset or sweep is already running; retry shortly.")
		case api.CodeConflict:
			lines = append(lines, "hint: an image with this filename exists; rename the file or delete the image first.")
		case api.CodeProviderError:
			lines = append(lines, "hint: the image provider rejected the request; verify its API key ("+providerKeyHint()+").")
		case api.CodeNoImageProduced:
			lines = append(lines, "hint: the provider returned no image; try a different comment or retry.")
		case api.CodeFetchFailed:
			lines = append(lines, "hint: the provider's result URL could not be downloaded; retry the generation.")
		case api.CodeConsistencyFault:
			lines = append(lines, "hint: a record references a missing blob; run: reimagine admin sweep")
		case "":
			lines = append(lines, "hint: verify REIMAGINE_API_URL points to a reimagine server.")
		}
		if apiErr.ServerFault() {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; generation can be slow, increase REIMAGINE_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a reimagine server is running at REIMAGINE_API_URL.",
			"hint: start local server manually with: reimagine srv",
			"hint: you can increase REIMAGINE_HTTP_TIMEOUT for slower environments.",
		)
	}

	return uniqueLines(lines)
}

func providerKeyHint() string {
	return provider.GeminiKeyEnv + ", " + provider.OpenAIKeyEnv + " or " + provider.ReplicateKeyEnv
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
