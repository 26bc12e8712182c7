// Command healthvault encrypts health readings and computes on them through
// the configured engine backend.
//
// The lattice backend generates its keys per process: its encoded values can
// only be decrypted by the process that produced them, so use the demo
// command to exercise it end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tuneinsight/healthvault/config"
	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/utils"
	"github.com/tuneinsight/healthvault/utils/logging"
	"github.com/tuneinsight/healthvault/vault"
)

var (
	version = "dev"

	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "healthvault",
	Short:         "Encrypted health readings",
	Long:          `healthvault stores numeric health readings only in encrypted form and computes averages and comparisons over the encrypted values.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the configuration")

	averageCmd.Flags().Bool("reveal", false, "decrypt the average instead of printing it encoded")

	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(averageCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(demoCmd)
}

// setup loads the configuration and returns an initialized engine.
func setup(ctx context.Context) (*config.Config, *engine.Engine, logging.Logger, error) {

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, nil, nil, err
		}
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.NewText(os.Stderr, logging.ParseLevel(level))

	backend, err := cfg.NewBackend()
	if err != nil {
		return nil, nil, nil, err
	}

	e := engine.New(backend, engine.WithLogger(logger))
	if err := e.Initialize(ctx); err != nil {
		return nil, nil, nil, neutral("initialize the engine", err)
	}

	return cfg, e, logger, nil
}

// neutral hides the error text from the user: engine errors may carry
// backend details.
func neutral(action string, err error) error {
	return fmt.Errorf("failed to %s (%s)", action, engine.Kind(err))
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt <value>",
	Short: "Encrypt a reading",
	Long:  `Encrypt a reading. Values are rounded to the nearest integer and wrapped modulo 2^32.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[0])
		}

		_, e, _, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		v, err := e.Encrypt(cmd.Context(), utils.QuantizeUint32(value))
		if err != nil {
			return neutral("encrypt data", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <encoded>",
	Short: "Decrypt an encoded value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, e, _, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		x, err := e.Decrypt(cmd.Context(), engine.EncodedValue(args[0]))
		if err != nil {
			return neutral("decrypt data", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), x)
		return nil
	},
}

var averageCmd = &cobra.Command{
	Use:   "average <encoded> <encoded>...",
	Short: "Average encoded values",
	Long:  `Average encoded values. The result is itself an encoded value; pass --reveal to decrypt it.`,
	Args:  cobra.MinimumNArgs(engine.MinOperands),
	RunE: func(cmd *cobra.Command, args []string) error {
		reveal, _ := cmd.Flags().GetBool("reveal")

		_, e, _, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		values := make([]engine.EncodedValue, len(args))
		for i := range args {
			values[i] = engine.EncodedValue(args[i])
		}

		avg, err := e.Average(cmd.Context(), values)
		if err != nil {
			return neutral("compute average", err)
		}

		if !reveal {
			fmt.Fprintln(cmd.OutOrStdout(), avg)
			return nil
		}

		x, err := e.Decrypt(cmd.Context(), avg)
		if err != nil {
			return neutral("decrypt data", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), x)
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <encoded> <encoded>",
	Short: "Compare two encoded values",
	Long:  `Compare two encoded values and print -1, 0 or 1.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, e, _, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		c, err := e.Compare(cmd.Context(), engine.EncodedValue(args[0]), engine.EncodedValue(args[1]))
		if err != nil {
			return neutral("compare data", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), c)
		return nil
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the sample vault scenario",
	Long:  `Encrypt a weight, systolic blood pressure, glucose and heart rate reading, then average and classify them without revealing them.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, e, logger, err := setup(ctx)
		if err != nil {
			return err
		}

		key, err := cfg.Vault.Key()
		if err != nil {
			return fmt.Errorf("invalid attestation key: %w", err)
		}

		v, err := vault.New(e, key, vault.WithLogger(logger))
		if err != nil {
			return err
		}

		return runDemo(ctx, cmd, v)
	},
}

func runDemo(ctx context.Context, cmd *cobra.Command, v *vault.Vault) error {
	out := cmd.OutOrStdout()

	readings := []struct {
		metric vault.MetricID
		value  float64
	}{
		{vault.Weight, 72},
		{vault.BloodPressureSys, 118},
		{vault.Glucose, 95},
		{vault.HeartRate, 68},
	}

	for _, r := range readings {
		stored, err := v.Store(ctx, r.metric, r.value)
		if err != nil {
			return neutral("encrypt data", err)
		}
		fmt.Fprintf(out, "%-18s %s\n", r.metric, short(stored.Value))
	}

	for _, r := range readings {
		m, _ := vault.Lookup(r.metric)
		status, err := v.Classify(ctx, r.metric)
		if err != nil {
			return neutral("compare data", err)
		}
		fmt.Fprintf(out, "%-18s %s (normal %d-%d %s)\n", r.metric, status, m.NormalRange.Min, m.NormalRange.Max, m.Unit)
	}

	avg, err := v.AverageValue(ctx)
	if err != nil {
		return neutral("compute average", err)
	}
	fmt.Fprintf(out, "average computed on encrypted data: %d\n", avg)

	s, err := v.Summary(ctx)
	if err != nil {
		return neutral("decrypt data", err)
	}
	fmt.Fprintf(out, "encrypted=%d mean=%.2f median=%.2f stddev=%.2f\n", s.Encrypted, s.Mean, s.Median, s.StdDev)
	return nil
}

func short(v engine.EncodedValue) string {
	const n = 24
	if s := v.String(); len(s) > n {
		return s[:n] + "..."
	}
	return v.String()
}
