package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chronoslabs/chronos/internal/identity"
	"github.com/chronoslabs/chronos/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	authToken string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chronos",
	Short: "Chronos integrity ledger CLI",
	Long: `chronos is the command-line interface for a chronosd server.

It records operations to the hash-chain ledger, inspects the event
timeline, coordinates agent sets, manages before/after proofs, and runs
integrity verifications.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.chronos")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8460"
		}
		if authToken == "" {
			authToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chronos/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "chronosd base URL (default http://localhost:8460)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer service token for write endpoints")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(coordinateCmd)
	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if authToken != "" {
		opts = append(opts, client.WithBearerToken(authToken))
	}
	return client.New(serverURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the full hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		status, err := c.VerifyChain(context.Background())
		if err != nil {
			return fmt.Errorf("verify chain: %w", err)
		}
		if status.Valid {
			fmt.Println("✓ Chain intact")
			return nil
		}
		fmt.Println("✗ Chain BROKEN")
		if status.BreakIndex != nil {
			fmt.Printf("  First break at index: %d\n", *status.BreakIndex)
		}
		if status.Error != "" {
			fmt.Printf("  Detail: %s\n", status.Error)
		}
		os.Exit(1)
		return nil
	},
}

// ── manifest ─────────────────────────────────────────────────────────────────

var manifestFormat string

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Show the current chain-head manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		m, err := c.ManifestSnapshot(context.Background())
		if err != nil {
			return fmt.Errorf("fetch manifest: %w", err)
		}
		if manifestFormat == "json" {
			return printJSON(m)
		}
		fmt.Printf("Chain length: %d\n", m.ChainLength)
		fmt.Printf("Latest hash:  %s\n", m.LatestHash)
		fmt.Printf("Genesis hash: %s\n", m.GenesisHash)
		fmt.Printf("Generated at: %s\n", m.GeneratedAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	manifestCmd.Flags().StringVar(&manifestFormat, "format", "text", "Output format: text or json")
}

// ── record ───────────────────────────────────────────────────────────────────

var (
	recordType      string
	recordOperation string
	recordAgent     string
	recordFiles     []string
	recordMeta      []string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record an operation to the hash-chain ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		meta := map[string]string{}
		for _, kv := range recordMeta {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid --meta %q: want key=value", kv)
			}
			meta[k] = v
		}

		txID, err := c.Record(context.Background(), client.RecordRequest{
			Type:      recordType,
			Operation: recordOperation,
			Agent:     recordAgent,
			Files:     recordFiles,
			Metadata:  meta,
		})
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		fmt.Printf("✓ Transaction confirmed\n\n  ID: %s\n", txID)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordType, "type", "memory_update", "Event type")
	recordCmd.Flags().StringVar(&recordOperation, "operation", "", "Operation name")
	recordCmd.Flags().StringVar(&recordAgent, "agent", "", "Acting agent name")
	recordCmd.Flags().StringSliceVar(&recordFiles, "file", nil, "Affected file (repeatable)")
	recordCmd.Flags().StringSliceVar(&recordMeta, "meta", nil, "Metadata key=value (repeatable)")

	_ = recordCmd.MarkFlagRequired("operation")
	_ = recordCmd.MarkFlagRequired("agent")
}

// ── timeline ─────────────────────────────────────────────────────────────────

var (
	timelineAgent  string
	timelineFormat string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show the sequence-ordered event timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		events, err := c.Timeline(context.Background(), timelineAgent)
		if err != nil {
			return fmt.Errorf("fetch timeline: %w", err)
		}
		if timelineFormat == "json" {
			return printJSON(events)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tKIND\tAGENT\tOPERATION\tTIMESTAMP")
		for _, ev := range events {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				ev.Sequence, ev.Kind, ev.Agent, ev.Payload.Operation,
				ev.Timestamp.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	timelineCmd.Flags().StringVar(&timelineAgent, "agent", "", "Filter by agent name")
	timelineCmd.Flags().StringVar(&timelineFormat, "format", "text", "Output format: text or json")
}

// ── coordinate ───────────────────────────────────────────────────────────────

var coordinateOperation string

var coordinateCmd = &cobra.Command{
	Use:   "coordinate <agent> [agent] ...",
	Short: "Open a coordination window over a set of agents",
	Long: `Coordinate atomically locks every named agent, records the coordination
window on the timeline, and releases the locks. If any agent is already
locked by another coordination, the attempt is rejected immediately.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		err = c.Coordinate(context.Background(), coordinateOperation, args)
		if err != nil {
			if errors.Is(err, client.ErrContention) {
				fmt.Println("✗ Coordination rejected: one or more agents are locked")
				os.Exit(1)
			}
			return fmt.Errorf("coordinate: %w", err)
		}
		fmt.Printf("✓ Coordination completed for %d agent(s)\n", len(args))
		return nil
	},
}

func init() {
	coordinateCmd.Flags().StringVar(&coordinateOperation, "operation", "coordination", "Operation name for the window")
}

// ── proof ────────────────────────────────────────────────────────────────────

var proofCmd = &cobra.Command{
	Use:   "proof",
	Short: "Manage before/after file-state proofs",
}

var proofCreateCmd = &cobra.Command{
	Use:   "create <file> [file] ...",
	Short: "Create a proof capturing the before-state of a fileset",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.CreateProof(context.Background(), proofOperation, args)
		if err != nil {
			return fmt.Errorf("create proof: %w", err)
		}
		fmt.Printf("✓ Proof created\n\n")
		fmt.Printf("  ID:          %s\n", p.ID)
		fmt.Printf("  Before hash: %s\n", p.BeforeHash)
		if len(p.SkippedFiles) > 0 {
			fmt.Printf("  Skipped:     %s\n", strings.Join(p.SkippedFiles, ", "))
		}
		fmt.Printf("\nAfter the operation, run:\n  chronos proof finalize %s\n", p.ID)
		return nil
	},
}

var proofFinalizeCmd = &cobra.Command{
	Use:   "finalize <proof-id> [file] ...",
	Short: "Finalize a proof by capturing the fileset's after-state",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.FinalizeProof(context.Background(), args[0], args[1:])
		if err != nil {
			return fmt.Errorf("finalize proof: %w", err)
		}
		fmt.Printf("✓ Proof finalized\n\n")
		fmt.Printf("  Before hash: %s\n", p.BeforeHash)
		fmt.Printf("  After hash:  %s\n", p.AfterHash)
		if p.BeforeHash == p.AfterHash {
			fmt.Println("\nNote: content is unchanged; this proof will not verify.")
		}
		return nil
	},
}

var proofVerifyCmd = &cobra.Command{
	Use:   "verify <proof-id>",
	Short: "Verify that a proof shows finalized, changed content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		verified, err := c.VerifyProof(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("verify proof: %w", err)
		}
		if verified {
			fmt.Println("✓ Proof verified")
			return nil
		}
		fmt.Println("✗ Proof NOT verified (pending, unchanged, or empty fileset)")
		os.Exit(1)
		return nil
	},
}

var proofOperation string

func init() {
	proofCreateCmd.Flags().StringVar(&proofOperation, "operation", "", "Operation the proof covers")
	_ = proofCreateCmd.MarkFlagRequired("operation")

	proofCmd.AddCommand(proofCreateCmd)
	proofCmd.AddCommand(proofFinalizeCmd)
	proofCmd.AddCommand(proofVerifyCmd)
}

// ── report ───────────────────────────────────────────────────────────────────

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a consolidation report",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		r, err := c.Report(context.Background())
		if err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
		if reportFormat == "json" {
			return printJSON(r)
		}

		fmt.Printf("Report:       %s\n", r.ReportID)
		fmt.Printf("Generated at: %s\n\n", r.GeneratedAt.Format(time.RFC3339))
		fmt.Printf("Chain length:    %d\n", r.Manifest.ChainLength)
		fmt.Printf("Latest hash:     %s\n", r.Manifest.LatestHash)
		fmt.Printf("Temporal events: %d\n", r.TemporalEvents)
		fmt.Printf("Proofs:          %d total, %d verified, %d pending\n\n",
			r.Proofs.Total, r.Proofs.Verified, r.Proofs.Pending)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tRESULT")
		fmt.Fprintf(w, "chain integrity\t%s\n", passFail(r.Integrity.ChainIntegrity))
		fmt.Fprintf(w, "temporal consistency\t%s\n", passFail(r.Integrity.TemporalConsistency))
		fmt.Fprintf(w, "proof validity\t%s\n", passFail(r.Integrity.ProofValidity))
		fmt.Fprintf(w, "manifest accuracy\t%s\n", passFail(r.Integrity.ManifestAccuracy))
		fmt.Fprintf(w, "overall\t%s\n", passFail(r.Integrity.OverallIntegrity))
		return w.Flush()
	},
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "Output format: text or json")
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSecret string
	tokenAgent  string
	tokenScopes []string
	tokenIssuer string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a service token for the chronosd write endpoints",
	Long: `token signs an HS256 service token locally using the shared signing
secret. The secret and issuer must match the server's auth.signing_secret
and auth.issuer configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			tokenSecret = viper.GetString("signing_secret")
		}
		if tokenSecret == "" {
			return fmt.Errorf("--secret is required (or set signing_secret in the config file)")
		}

		issuer := identity.NewTokenIssuer([]byte(tokenSecret), tokenIssuer, tokenTTL)
		signed, err := issuer.Issue(tokenAgent, tokenScopes)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		fmt.Println(signed)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Shared HMAC signing secret")
	tokenCmd.Flags().StringVar(&tokenAgent, "agent", "", "Agent identity the token is bound to")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{"chronos:write"}, "Token scope (repeatable)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "chronosd", "Token issuer claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")

	_ = tokenCmd.MarkFlagRequired("agent")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chronos CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chronos %s\n", version)
	},
}
