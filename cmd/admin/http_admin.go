package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStateCommand() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Fetch live engine state from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminRequest(cmd, http.MethodGet, baseURL, "/admin/v1/state", 5*time.Second)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

func newSaveNowCommand() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "save-now",
		Short: "Ask a running server to write a save immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminRequest(cmd, http.MethodPost, baseURL, "/admin/v1/save", 10*time.Second)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

func adminRequest(cmd *cobra.Command, method, baseURL, path string, timeout time.Duration) error {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
