package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the `bloodeclipse health` command.
// Used by the Docker HEALTHCHECK and monitoring.
func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the running bot's health endpoint",
		Long: `Query GET /health on the running bot and print the response. With
--ready, query /ready instead, which fails until Discord is connected.
Exits non-zero when the bot is unreachable or reports a problem.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _ := cmd.Flags().GetString("url")
			if url == "" {
				cfg, _, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				path := "/health"
				if ready, _ := cmd.Flags().GetBool("ready"); ready {
					path = "/ready"
				}
				url = healthURL(cfg.Gateway.Address, path)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			return checkHealth(ctx, url, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("url", "", "endpoint to query (default from gateway.address)")
	cmd.Flags().Bool("ready", false, "check readiness instead of liveness")
	return cmd
}

// healthURL turns a listen address into a local URL.
func healthURL(addr, path string) string {
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + path
}

func checkHealth(ctx context.Context, url string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("reading health response: %w", err)
	}
	fmt.Fprintln(out, strings.TrimSpace(string(body)))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}
