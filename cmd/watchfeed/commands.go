package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/kalambet/watchfeed/internal/config"
)

// --- watchlist ---

var watchlistCmd = &cobra.Command{
	Use:     "watchlist",
	Aliases: []string{"wl"},
	Short:   "Manage watchlists",
}

var watchlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/watchlists", map[string]string{"name": args[0]})
		if err != nil {
			return err
		}
		var wl struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &wl); err != nil {
			return err
		}
		printSuccess("Created watchlist %q (%s)", wl.Name, wl.ID)
		return nil
	},
}

var watchlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watchlists as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, "/watchlists")
	},
}

var watchlistShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a watchlist as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, "/watchlists/"+url.PathEscape(args[0]))
	},
}

var watchlistDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a watchlist with its members, posts and settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/watchlists/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted watchlist %s", args[0])
		return nil
	},
}

func init() {
	watchlistCmd.AddCommand(watchlistCreateCmd)
	watchlistCmd.AddCommand(watchlistListCmd)
	watchlistCmd.AddCommand(watchlistShowCmd)
	watchlistCmd.AddCommand(watchlistDeleteCmd)
}

// --- member ---

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage the accounts followed by a watchlist",
}

var memberAddCmd = &cobra.Command{
	Use:   "add <watchlist-id> <username>",
	Short: "Add an account to a watchlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/watchlists/"+url.PathEscape(args[0])+"/members", map[string]string{
			"username": args[1],
			"note":     note,
		})
		if err != nil {
			return err
		}
		var m struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		}
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}
		printSuccess("Added @%s (%s)", m.Username, m.ID)
		return nil
	},
}

var memberListCmd = &cobra.Command{
	Use:   "list <watchlist-id>",
	Short: "List watchlist members as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, "/watchlists/"+url.PathEscape(args[0])+"/members")
	},
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove <watchlist-id> <member-id>",
	Short: "Remove a member from a watchlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/watchlists/"+url.PathEscape(args[0])+"/members/"+url.PathEscape(args[1]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Removed member %s", args[1])
		return nil
	},
}

func init() {
	memberAddCmd.Flags().String("note", "", "free-form note about the account")
	memberCmd.AddCommand(memberAddCmd)
	memberCmd.AddCommand(memberListCmd)
	memberCmd.AddCommand(memberRemoveCmd)
}

// --- posts ---

var postsCmd = &cobra.Command{
	Use:   "posts <watchlist-id>",
	Short: "List stored posts newest first as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return getAndPrint(cmd, fmt.Sprintf("/watchlists/%s/posts?limit=%d", url.PathEscape(args[0]), limit))
	},
}

func init() {
	postsCmd.Flags().Int("limit", 50, "maximum number of posts")
}

// --- runs ---

var fetchCmd = &cobra.Command{
	Use:   "fetch <watchlist-id>",
	Short: "Fetch new posts for every member of a watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runFetch(cmd.Context(), client, cmd.OutOrStdout(), args[0])
	},
}

func runFetch(ctx context.Context, client *apiClient, w io.Writer, watchlistID string) error {
	resp, err := client.post(ctx, "/watchlists/"+url.PathEscape(watchlistID)+"/fetch", nil)
	if err != nil {
		return err
	}
	return streamRun(resp, w)
}

var translateCmd = &cobra.Command{
	Use:   "translate <watchlist-id>",
	Short: "Translate and comment on untranslated posts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		postID, _ := cmd.Flags().GetString("post")
		limit, _ := cmd.Flags().GetInt("limit")
		stream, _ := cmd.Flags().GetBool("stream")
		if limit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		if stream && postID != "" {
			return fmt.Errorf("--stream and --post are mutually exclusive")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runTranslate(cmd.Context(), client, cmd.OutOrStdout(), args[0], translateOptions{
			PostID: postID,
			Limit:  limit,
			Stream: stream,
		})
	},
}

type translateOptions struct {
	PostID string `json:"postId,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Stream bool   `json:"stream,omitempty"`
}

func runTranslate(ctx context.Context, client *apiClient, w io.Writer, watchlistID string, opts translateOptions) error {
	resp, err := client.post(ctx, "/watchlists/"+url.PathEscape(watchlistID)+"/translate", opts)
	if err != nil {
		return err
	}
	if opts.Stream {
		return streamRun(resp, w)
	}
	var summary map[string]any
	if err := decodeJSON(resp, &summary); err != nil {
		return err
	}
	return printJSON(w, summary)
}

// streamRun renders run events until the done frame or the end of the
// stream.
func streamRun(resp *http.Response, w io.Writer) error {
	sawDone := false
	err := readEvents(resp, func(ev sseEvent) bool {
		renderEvent(w, ev)
		sawDone = ev.Name == "done"
		return !sawDone
	})
	if err != nil {
		return err
	}
	if !sawDone {
		printWarning("stream ended before the run finished")
	}
	return nil
}

func init() {
	translateCmd.Flags().String("post", "", "translate a single post by id")
	translateCmd.Flags().Int("limit", 0, "maximum posts to translate (default 20, max 50)")
	translateCmd.Flags().Bool("stream", false, "stream per-post results as they complete")
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs <watchlist-id>",
	Short: "List a watchlist's run logs newest first as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return getAndPrint(cmd, fmt.Sprintf("/watchlists/%s/logs?limit=%d", url.PathEscape(args[0]), limit))
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every run log of the current owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes ALL run logs. Use --confirm to proceed.")
			return nil
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/logs")
		if err != nil {
			return err
		}
		var result struct {
			Deleted int `json:"deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted %d run logs", result.Deleted)
		return nil
	},
}

func init() {
	logsCmd.Flags().Int("limit", 50, "maximum number of logs (max 200)")
	logsClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	logsCmd.AddCommand(logsClearCmd)
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update retention and fetch interval settings",
}

func settingsPath(cmd *cobra.Command) string {
	if id, _ := cmd.Flags().GetString("watchlist"); id != "" {
		return "/watchlists/" + url.PathEscape(id) + "/settings"
	}
	return "/settings"
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, settingsPath(cmd))
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set retention days and/or the fetch interval",
	Long: `Set retention days and/or the fetch interval, globally or for one watchlist.

Examples:
  watchfeed settings set --retention-days 3
  watchfeed settings set --watchlist <id> --fetch-interval 60`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]int{}
		if cmd.Flags().Changed("retention-days") {
			v, _ := cmd.Flags().GetInt("retention-days")
			body["retentionDays"] = v
		}
		if cmd.Flags().Changed("fetch-interval") {
			v, _ := cmd.Flags().GetInt("fetch-interval")
			body["fetchIntervalMinutes"] = v
		}
		if len(body) == 0 {
			return fmt.Errorf("one of --retention-days or --fetch-interval is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), settingsPath(cmd), body)
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset <watchlist-id>",
	Short: "Drop a watchlist's overrides so it inherits the global settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/watchlists/"+url.PathEscape(args[0])+"/settings")
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Reset settings of watchlist %s", args[0])
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var settingsAICmd = &cobra.Command{
	Use:   "ai",
	Short: "Show or update the AI provider settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, "/settings/ai")
	},
}

var settingsAISetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the AI provider, model and keys",
	Long: `Set the AI provider, model and keys. An empty value clears a key.

Examples:
  watchfeed settings ai set --provider openrouter --model openai/gpt-4o-mini --api-key sk-...
  watchfeed settings ai set --provider ollama --model qwen2.5
  watchfeed settings ai set --provider-api-key <twitterapi.io key>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		for flag, field := range map[string]string{
			"provider":         "provider",
			"model":            "model",
			"api-key":          "apiKey",
			"provider-api-key": "providerApiKey",
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				body[field] = v
			}
		}
		if len(body) == 0 {
			return fmt.Errorf("at least one of --provider, --model, --api-key or --provider-api-key is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/settings/ai", body)
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var settingsAIModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by an AI provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/settings/ai/models"
		if p, _ := cmd.Flags().GetString("provider"); p != "" {
			path += "?provider=" + url.QueryEscape(p)
		}
		return getAndPrint(cmd, path)
	},
}

func init() {
	settingsShowCmd.Flags().String("watchlist", "", "show the effective settings of one watchlist")
	settingsSetCmd.Flags().String("watchlist", "", "override the settings of one watchlist")
	settingsSetCmd.Flags().Int("retention-days", 0, "days to keep posts (1, 2, 3, 5 or 7)")
	settingsSetCmd.Flags().Int("fetch-interval", 0, "minutes between scheduled fetches (0 disables)")

	settingsAISetCmd.Flags().String("provider", "", "openrouter, ollama or gemini")
	settingsAISetCmd.Flags().String("model", "", "model name")
	settingsAISetCmd.Flags().String("api-key", "", "AI provider API key")
	settingsAISetCmd.Flags().String("provider-api-key", "", "post provider API key")
	settingsAIModelsCmd.Flags().String("provider", "", "provider to query (default: the configured one)")

	settingsAICmd.AddCommand(settingsAISetCmd)
	settingsAICmd.AddCommand(settingsAIModelsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	settingsCmd.AddCommand(settingsAICmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update local configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func getAndPrint(cmd *cobra.Command, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}
	var v any
	if err := decodeJSON(resp, &v); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}
