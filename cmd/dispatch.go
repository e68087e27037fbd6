package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"notion-task-monitor/internal/store"
)

func newDispatchCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Ask a running scheduler to start a run now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := strings.TrimRight(addr, "/") + "/dispatch"
			if !strings.Contains(url, "://") {
				url = "http://" + url
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
			if err != nil {
				return err
			}
			resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				var body struct {
					Error string `json:"error"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&body)
				return fmt.Errorf("dispatch: %s: %s", resp.Status, body.Error)
			}
			var rec store.RunRecord
			if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
				return fmt.Errorf("dispatch: decode response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dispatched run %s\n", rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "scheduler HTTP address")
	return cmd
}
