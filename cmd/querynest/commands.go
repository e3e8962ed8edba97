package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/api"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/config"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/identity"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/ledger"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/queries"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/repair"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve read-only MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		svc, err := openServices(cfg, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := api.NewMCPServer(api.MCPDeps{Queries: svc.queries, Ledger: svc.ledger}, version)
		err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- reconcile ---

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reset recommendation counters from live counts",
	Long: `Reset queryPoster.recommendationCount from the number of stored
recommendations. Without --query every query is checked.

Examples:
  querynest reconcile
  querynest reconcile --query 6f1c2a`,
	RunE: func(cmd *cobra.Command, args []string) error {
		queryID, _ := cmd.Flags().GetString("query")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		svc, err := openServices(cfg, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		return reconcile(cmd.Context(), svc.store.Queries(), svc.ledger, queryID, concurrency, os.Stdout)
	},
}

func reconcile(ctx context.Context, lister repair.QueryLister, rc repair.Recounter, queryID string, concurrency int, w io.Writer) error {
	if queryID != "" {
		n, err := rc.Recount(ctx, queryID)
		if err != nil {
			return err
		}
		printSuccess("Query %s has %d recommendations", queryID, n)
		return nil
	}

	res, err := repair.Sweep(ctx, lister, rc, nil, concurrency)
	if err != nil {
		return err
	}
	for _, d := range res.Drifted {
		fmt.Fprintf(w, "%s  stored=%d  actual=%d\n", colorize(colorCyan, d.QueryID), d.Stored, d.Actual)
	}
	if len(res.Drifted) > 0 {
		printWarning("Corrected %d of %d counters", len(res.Drifted), res.Checked)
	} else {
		printSuccess("Checked %d counters, none drifted", res.Checked)
	}
	return nil
}

func init() {
	reconcileCmd.Flags().String("query", "", "recount a single query id")
	reconcileCmd.Flags().Int("concurrency", repair.DefaultSweepConcurrency, "parallel recounts")
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a credential for an email, signed with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			return fmt.Errorf("--email is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.RequireSecret(); err != nil {
			return err
		}
		v, err := identity.NewVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
		token, expires, err := v.Issue(map[string]any{"email": email})
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, token)
		printStatus("Expires", "%s", expires.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("email", "", "principal email")
}

// --- queries ---

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Inspect queries on a running server",
}

var queriesMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List the queries posted by an email (uses a signed credential)",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			return fmt.Errorf("--email is required")
		}
		client, err := newAPIClient(email)
		if err != nil {
			return err
		}
		return listOwnQueries(cmd.Context(), client, email, os.Stdout)
	},
}

func listOwnQueries(ctx context.Context, client *apiClient, email string, w io.Writer) error {
	resp, err := client.get(ctx, "/queries/"+url.PathEscape(email))
	if err != nil {
		return err
	}
	var docs []storage.Document
	if err := decodeJSON(resp, &docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No queries found.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %s  %s  %d recommendations\n",
			colorize(colorCyan, d.ID()),
			d.String(queries.FieldPostedAt),
			d.String(queries.FieldCategory),
			d.Int64(queries.FieldCount),
		)
	}
	return nil
}

func init() {
	queriesMineCmd.Flags().String("email", "", "poster email")
	queriesCmd.AddCommand(queriesMineCmd)
}

// --- recommendations ---

var recommendationsCmd = &cobra.Command{
	Use:   "recommendations",
	Short: "Inspect recommendations on a running server",
}

var recommendationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recommendations received on an email's queries",
	Long: `List recommendations received on an email's queries, or with
--as-recommender the ones the email made.

Examples:
  querynest recommendations list --email alice@example.com
  querynest recommendations list --email alice@example.com --as-recommender`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		asRecommender, _ := cmd.Flags().GetBool("as-recommender")
		if email == "" {
			return fmt.Errorf("--email is required")
		}
		client, err := newAPIClient("")
		if err != nil {
			return err
		}
		return listRecommendations(cmd.Context(), client, email, asRecommender, os.Stdout)
	},
}

func listRecommendations(ctx context.Context, client *apiClient, email string, asRecommender bool, w io.Writer) error {
	path := "/recommender-data/" + url.PathEscape(email)
	if asRecommender {
		path += "?recommender=true"
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}
	var docs []storage.Document
	if err := decodeJSON(resp, &docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No recommendations found.")
		return nil
	}
	for _, d := range docs {
		who := d.String(ledger.FieldRecommender)
		if asRecommender {
			who = d.String(ledger.FieldQueryCreator)
		}
		fmt.Fprintf(w, "%s  %s  query=%s  %s\n",
			colorize(colorCyan, d.ID()),
			d.String(ledger.FieldRecommendedAt),
			d.String(ledger.FieldQueryID),
			who,
		)
	}
	return nil
}

func init() {
	recommendationsListCmd.Flags().String("email", "", "principal email")
	recommendationsListCmd.Flags().Bool("as-recommender", false, "list recommendations the email made")
	recommendationsCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (default http://localhost:<server.port>)")
	queriesCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (default http://localhost:<server.port>)")
	recommendationsCmd.AddCommand(recommendationsListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
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
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		if cfg.Auth.JWTSecret == "" {
			printWarning("no JWT signing secret configured; serve and token will refuse to start")
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

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value, restoring its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
