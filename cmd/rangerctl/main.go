// Package main implements rangerctl, the owner CLI for a running ranger server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/ranger/internal/buildconfig"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	server string
	token  string
	json   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "rangerctl",
		Short: "Owner CLI for the ranger server",
		Long: `rangerctl drives the owner routes of a ranger server: self-improvement
cycles, proposal review, knowledge transfer and tuning backups. It also
reads the conversation context and user patterns the server tracks.

The server URL and owner token default to RANGER_SERVER and
RANGER_OWNER_TOKEN.`,
		Version:       buildconfig.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("RANGER_SERVER", "http://localhost:8080"), "ranger server URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("RANGER_OWNER_TOKEN"), "owner bearer token")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	root.AddCommand(
		newHealthCmd(opts),
		newImproveCmd(opts),
		newProposalsCmd(opts),
		newKnowledgeCmd(opts),
		newBackupsCmd(opts),
		newConversationsCmd(opts),
		newUsersCmd(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var httpClient = &http.Client{Timeout: 2 * time.Minute}

// call sends a request to the server and decodes a JSON response into out
// when out is non-nil.
func (o *options) call(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	url := strings.TrimRight(o.server, "/") + path
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			if failure.Kind != "" {
				return fmt.Errorf("server returned status %d (%s): %s", resp.StatusCode, failure.Kind, failure.Error)
			}
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, failure.Error)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
