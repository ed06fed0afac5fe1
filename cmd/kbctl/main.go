// Package main implements the kbctl CLI for manual operations against the
// knowledged HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the knowledged HTTP server
	serverURL string
	topK      int
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "kbctl",
	Short:   "CLI for knowledged HTTP server operations",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "knowledged server URL")
	queryCmd.Flags().IntVar(&topK, "top-k", 0, "per-collection result budget (server default when 0)")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(reindexCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check knowledged server health",
	RunE:  runHealth,
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask the knowledge base a question",
	Long: `Ask the knowledge base a question.

Examples:
  kbctl query "what does the quarterly report say about revenue?"
  kbctl query --top-k 2 "who owns the billing service?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Recreate all vector indexes at the live embedding dimension",
	Long: `Recreate all vector indexes at the live embedding dimension.

WARNING: this is destructive. Every indexed point is deleted and records
must be re-ingested. Use it to recover from an embedding model upgrade
that changed the vector dimension.`,
	RunE: runReindex,
}

func client() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func runHealth(cmd *cobra.Command, args []string) error {
	resp, err := client().Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("ok")
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]interface{}{
		"query": strings.Join(args, " "),
		"top_k": topK,
	})
	if err != nil {
		return err
	}

	resp, err := client().Post(serverURL+"/api/v1/rag/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query failed: status %d: %s", resp.StatusCode, string(respBody))
	}

	var answer struct {
		Answer  string `json:"answer"`
		Sources string `json:"sources"`
	}
	if err := json.Unmarshal(respBody, &answer); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Println(answer.Answer)
	if answer.Sources != "" {
		fmt.Println("\nSources:")
		fmt.Println(answer.Sources)
	}
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	resp, err := client().Post(serverURL+"/api/v1/admin/reindex", "application/json", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reindex failed: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results   map[string]bool `json:"results"`
		Dimension int             `json:"dimension"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	names := make([]string, 0, len(result.Results))
	for name := range result.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("reindexed at dimension %d\n", result.Dimension)
	for _, name := range names {
		status := "ok"
		if !result.Results[name] {
			status = "FAILED"
		}
		fmt.Printf("  %-20s %s\n", name, status)
	}
	return nil
}
