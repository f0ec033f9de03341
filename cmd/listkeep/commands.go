package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"listkeep/internal/config"
)

type sessionInfo struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type itemView struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// askResponse covers both shapes the server sends back: an outcome body
// (including 404/409/422, which still carry one) and the error envelope
// used by auth and rate-limit rejections.
type askResponse struct {
	Outcome    string     `json:"outcome"`
	Message    string     `json:"message"`
	Items      []itemView `json:"items"`
	Suggestion *struct {
		Message string   `json:"message"`
		Items   []string `json:"items"`
	} `json:"suggestion"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type historyEntry struct {
	Input     string `json:"input"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

type importFile struct {
	Name    string `json:"name"`
	Format  string `json:"format"`
	Content string `json:"content"`
}

// parseAskResponse turns whatever the server sent back into an outcome. The
// envelope (auth, rate limit) and unparseable bodies come back as errors.
func parseAskResponse(status int, body []byte) (askResponse, error) {
	var out askResponse
	if err := json.Unmarshal(body, &out); err != nil || (out.Outcome == "" && out.Error == nil) {
		return askResponse{}, fmt.Errorf("server returned %d: %s", status, bytes.TrimSpace(body))
	}
	if out.Error != nil {
		return askResponse{}, fmt.Errorf("%s", out.Error.Message)
	}
	return out, nil
}

func buildImportFiles(paths []string) ([]importFile, error) {
	files := make([]importFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		files = append(files, importFile{
			Name:    filepath.Base(path),
			Format:  formatForExt(filepath.Ext(path)),
			Content: base64.StdEncoding.EncodeToString(data),
		})
	}
	return files, nil
}

var registerPassword string

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		password := registerPassword
		if password == "" {
			password, err = readPassword("Password (min 8 characters): ")
			if err != nil {
				return err
			}
		}

		resp, err := client.post(cmd.Context(), "/auth/register", map[string]string{
			"email":    args[0],
			"password": password,
		})
		if err != nil {
			return err
		}

		var session sessionInfo
		if err := decodeJSON(resp, &session); err != nil {
			return err
		}
		if err := saveToken(client.dataDir, session.Token); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}

		printSuccess("Registered %s and logged in", args[0])
		return nil
	},
}

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in to an existing account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		password := loginPassword
		if password == "" {
			password, err = readPassword("Password: ")
			if err != nil {
				return err
			}
		}

		resp, err := client.post(cmd.Context(), "/auth/login", map[string]string{
			"email":    args[0],
			"password": password,
		})
		if err != nil {
			return err
		}

		var session sessionInfo
		if err := decodeJSON(resp, &session); err != nil {
			return err
		}
		if err := saveToken(client.dataDir, session.Token); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}

		printSuccess("Logged in as %s", args[0])
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and discard the local session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if client.token == "" {
			printWarning("not logged in")
			return nil
		}

		// Best effort: the local session file goes away even if the server
		// is down.
		if resp, err := client.post(cmd.Context(), "/auth/logout", nil); err == nil {
			resp.Body.Close()
		}
		clearToken(client.dataDir)

		printSuccess("Logged out")
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <text>...",
	Short: "Tell listkeep what to do, in plain language",
	Long: `Send a natural-language request to the server, for example:

  listkeep ask add milk to my list
  listkeep ask what is on my list
  listkeep ask remove the eggs`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := requireLogin(client); err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/requests", map[string]string{
			"text": strings.Join(args, " "),
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		out, err := parseAskResponse(resp.StatusCode, body)
		if err != nil {
			return err
		}

		switch out.Outcome {
		case "created", "updated", "deleted":
			printSuccess("%s", out.Message)
		case "query":
			if len(out.Items) == 0 {
				fmt.Println("Your list is empty.")
			} else {
				for _, item := range out.Items {
					fmt.Printf("- %s\n", item.Content)
				}
			}
		case "conflict", "not_found", "rejected_ambiguous", "bad_request":
			printWarning("%s", out.Message)
		default:
			return fmt.Errorf("%s", out.Message)
		}

		if out.Suggestion != nil {
			fmt.Fprintf(os.Stderr, "%s\n", out.Suggestion.Message)
			for _, item := range out.Suggestion.Items {
				fmt.Fprintf(os.Stderr, "  - %s\n", item)
			}
		}
		return nil
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List everything on your list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := requireLogin(client); err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/items")
		if err != nil {
			return err
		}

		var items []itemView
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("Your list is empty.")
			return nil
		}
		for _, item := range items {
			fmt.Printf("- %s\n", item.Content)
		}
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent requests and how they went",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := requireLogin(client); err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/requests/recent?limit=%d", historyLimit))
		if err != nil {
			return err
		}

		var entries []historyEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No requests yet.")
			return nil
		}
		for _, e := range entries {
			ts := e.CreatedAt
			if len(ts) > 16 {
				ts = strings.Replace(ts[:16], "T", " ", 1)
			}
			fmt.Printf("%s  %s  %s\n", ts, colorize(outcomeColor(e.Outcome), fmt.Sprintf("%-22s", e.Outcome)), truncate(e.Input, 60))
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import items from text, HTML or PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := requireLogin(client); err != nil {
			return err
		}

		files, err := buildImportFiles(args)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/items/import", map[string]any{"files": files})
		if err != nil {
			return err
		}

		var result struct {
			Added   int `json:"added"`
			Skipped int `json:"skipped"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Imported %d items (%d duplicates skipped)", result.Added, result.Skipped)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		for _, info := range config.ShowAll(cfg) {
			fmt.Printf("%s = %s\n", colorize(colorBold, info.Key), info.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys:\n\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(configPath, args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "password (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (prompted when omitted)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of entries to show")
	configCmd.AddCommand(configShowCmd, configSetCmd)
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func formatForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return "html"
	case ".pdf":
		return "pdf"
	default:
		return "text"
	}
}

func outcomeColor(outcome string) string {
	switch outcome {
	case "created", "updated", "deleted", "query":
		return colorGreen
	case "conflict", "not_found", "rejected_ambiguous", "bad_request":
		return colorYellow
	default:
		return colorRed
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
