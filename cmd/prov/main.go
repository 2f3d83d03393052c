// Command prov is the provenance ledger CLI. It anchors experiment
// payload digests to the configured ledger backend (mock or chain),
// retrieves anchored records, and verifies current data against them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/labtrail/provenance/internal/health"
	"github.com/labtrail/provenance/internal/ledger"
	"github.com/labtrail/provenance/internal/ledger/chain"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	logger  *zap.Logger

	svcOnce sync.Once
	svc     *ledger.Service
	svcErr  error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "prov",
	Short: "Provenance ledger CLI",
	Long: `prov anchors deterministic fingerprints of experiment data to an
append-only ledger and verifies later that the data has not diverged
from what was anchored.

Backends: "mock" (in-process, for development) and "chain" (a live
EVM-compatible network). Without a signing key the chain backend runs
in read-only mode: records can be fetched and verified but not anchored.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.SetConfigName("prov")
			viper.SetConfigType("yaml")
			viper.AddConfigPath(".")
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.prov")
		}
		viper.SetEnvPrefix("prov")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		viper.SetDefault("ledger.mode", "mock")
		viper.SetDefault("ledger.network", "testnet")
		viper.SetDefault("ledger.rpc_url", "https://neoxt4seed1.ngd.network")
		viper.SetDefault("ledger.chain_id", 12227332)
		viper.SetDefault("ledger.private_key", "")
		viper.SetDefault("ledger.anchor_address", "")
		viper.SetDefault("ledger.confirm_timeout", "120s")
		viper.SetDefault("metrics.listen", ":9464")
		viper.SetDefault("monitor.check_interval", "30s")

		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}

		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync() //nolint:errcheck
		}
	},
}

// service builds the ledger facade exactly once per process; every
// command shares the same instance and the same backend connection.
func service() (*ledger.Service, error) {
	svcOnce.Do(func() {
		mode := ledger.Mode(viper.GetString("ledger.mode"))

		var client ledger.Client
		switch mode {
		case ledger.ModeMock:
			client = ledger.NewMock()
		case ledger.ModeChain:
			client, svcErr = chain.New(chain.Config{
				Network:        viper.GetString("ledger.network"),
				RPCURL:         viper.GetString("ledger.rpc_url"),
				ChainID:        viper.GetUint64("ledger.chain_id"),
				PrivateKey:     viper.GetString("ledger.private_key"),
				AnchorAddress:  viper.GetString("ledger.anchor_address"),
				ConfirmTimeout: viper.GetDuration("ledger.confirm_timeout"),
			}, logger)
			if svcErr != nil {
				return
			}
		default:
			svcErr = fmt.Errorf("unknown ledger mode %q (want mock or chain)", mode)
			return
		}

		svc = ledger.NewService(client, mode, logger)
	})
	return svc, svcErr
}

// readPayload loads a JSON payload from path, or stdin when path is "-".
// Numbers are kept as json.Number so the digest does not depend on
// float formatting.
func readPayload(path string) (map[string]any, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var digestCmd = &cobra.Command{
	Use:   "digest [payload.json]",
	Short: "Compute the canonical digest of a payload without anchoring it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		payload, err := readPayload(path)
		if err != nil {
			return err
		}

		s, err := service()
		if err != nil {
			return err
		}
		digest, err := s.ComputeDigest(payload)
		if err != nil {
			return err
		}
		fmt.Println(digest)
		return nil
	},
}

var anchorMetadata map[string]string

var anchorCmd = &cobra.Command{
	Use:   "anchor <subject-id> [payload.json]",
	Short: "Anchor a payload digest to the ledger",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 2 {
			path = args[1]
		}
		payload, err := readPayload(path)
		if err != nil {
			return err
		}

		s, err := service()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		ref, err := s.StoreRecord(ctx, args[0], payload, anchorMetadata)
		switch {
		case errors.Is(err, ledger.ErrNoSigner):
			return errors.New("ledger is in read-only mode: configure ledger.private_key to anchor records")
		case errors.Is(err, ledger.ErrConfirmationTimeout):
			return fmt.Errorf("%v\nthe transaction may still confirm; retry `prov get` with its hash rather than anchoring again", err)
		case err != nil:
			return err
		}

		return printJSON(map[string]string{"reference": ref})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <reference>",
	Short: "Fetch the anchor record stored under a reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := service()
		if err != nil {
			return err
		}

		rec, err := s.GetRecord(cmd.Context(), args[0])
		if errors.Is(err, ledger.ErrNotFound) {
			fmt.Println("not found")
			return nil
		}
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <reference> [payload.json]",
	Short: "Verify a payload against its anchored digest",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 2 {
			path = args[1]
		}
		payload, err := readPayload(path)
		if err != nil {
			return err
		}

		s, err := service()
		if err != nil {
			return err
		}
		res, err := s.Verify(cmd.Context(), payload, args[0])
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger network status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := service()
		if err != nil {
			return err
		}
		info := s.NetworkStatus(cmd.Context())

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "mode:\t%s\n", s.Mode())
		fmt.Fprintf(w, "network:\t%s\n", info.Network)
		fmt.Fprintf(w, "chain id:\t%d\n", info.ChainID)
		fmt.Fprintf(w, "connected:\t%v\n", info.Connected)
		if info.LatestBlock != nil {
			fmt.Fprintf(w, "latest block:\t%d\n", *info.LatestBlock)
		}
		if info.SignerAddress != "" {
			fmt.Fprintf(w, "signer:\t%s\n", info.SignerAddress)
			if info.Balance != nil {
				fmt.Fprintf(w, "balance (wei):\t%s\n", info.Balance)
			}
		} else {
			fmt.Fprintf(w, "signer:\tnone (read-only mode)\n")
		}
		return w.Flush()
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch ledger connectivity and serve metrics until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := service()
		if err != nil {
			return err
		}

		mon := health.New(s, health.Config{
			CheckInterval: viper.GetDuration("monitor.check_interval"),
		}, logger)
		mon.SetStatusFunc(ledger.RecordConnectivity)
		mon.Check(cmd.Context())

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              viper.GetString("metrics.listen"),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listener started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		mon.Start(quit)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./prov.yaml, then ~/.prov/prov.yaml)")

	anchorCmd.Flags().StringToStringVar(&anchorMetadata, "metadata", nil, "metadata key=value pairs stored alongside the digest")

	rootCmd.AddCommand(digestCmd, anchorCmd, getCmd, verifyCmd, statusCmd, monitorCmd)
}
