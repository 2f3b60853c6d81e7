package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hassmic/cheyenne-go/pkg/cheyenne"
)

var (
	host       string
	port       int
	diagAddr   string
	play       bool
	recordPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cheyenne",
		Short: "Cheyenne protocol bridge CLI",
		Long:  "Bridge a remote voice-capture device into a host speech pipeline over the Cheyenne protocol",
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		cheyenne.DefaultLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildConfig() (*cheyenne.Config, error) {
	cfg := cheyenne.NewConfig()
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if diagAddr != "" {
		cfg.DiagAddr = diagAddr
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	if issues := cfg.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "config: %s\n", issue)
		}
		return nil, fmt.Errorf("invalid configuration")
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge against a device",
		Long:  "Connect to a device, keep the connection alive and consume its audio stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client := cheyenne.NewClient(cfg)
			defer client.Close()

			if cfg.DiagAddr != "" {
				diag := cheyenne.NewDiagServer(cfg.DiagAddr, client, cheyenne.LoggerFor(cfg))
				go func() {
					if err := diag.Run(ctx); err != nil {
						cheyenne.DefaultLogger().WithError(err).Error("diagnostics server failed")
					}
				}()
			}

			go consumeAudio(ctx, cfg, client)

			client.Run(ctx)
			return nil
		},
	}

	cmd.Flags().StringVarP(&host, "host", "H", "", "Device hostname or IP")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Device port (default 11700)")
	cmd.Flags().StringVar(&diagAddr, "diag", "", "Diagnostics server listen address (e.g. :9800)")
	cmd.Flags().BoolVar(&play, "play", false, "Play received audio on the local output device")
	cmd.Flags().StringVar(&recordPath, "record", "", "Append received PCM audio to a file")

	return cmd
}

// consumeAudio drains the bridge. Something must always consume it; an
// unconsumed bridge just cycles through its overflow policy.
func consumeAudio(ctx context.Context, cfg *cheyenne.Config, client *cheyenne.Client) {
	log := cheyenne.LoggerFor(cfg).WithComponent("consumer")

	var monitor *cheyenne.Monitor
	if play {
		m, err := cheyenne.NewMonitor(cheyenne.LoggerFor(cfg))
		if err != nil {
			log.WithError(err).Error("failed to open audio monitor, discarding audio instead")
		} else {
			monitor = m
			defer monitor.Close()
		}
	}

	var record *os.File
	if recordPath != "" {
		f, err := os.OpenFile(recordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).Errorf("failed to open %s, not recording", recordPath)
		} else {
			record = f
			defer record.Close()
			log.Infof("recording raw PCM to %s", recordPath)
		}
	}

	var total int64
	for chunk := range client.Audio().Chunks(ctx) {
		total += int64(len(chunk))
		if monitor != nil {
			monitor.Play(chunk)
		}
		if record != nil {
			if _, err := record.Write(chunk); err != nil {
				log.WithError(err).Error("record write failed, stopping recording")
				record.Close()
				record = nil
			}
		}
	}
	log.Infof("audio consumer done, %d bytes received", total)
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <host> <port>",
		Short: "Validate that a target is a Cheyenne device",
		Long:  "Perform the one-shot handshake and print the device uuid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[1])
			}

			ctx, stop := signalContext()
			defer stop()

			uuid, err := cheyenne.ValidateTarget(ctx, args[0], p, 0)
			if err != nil {
				return err
			}
			fmt.Println(uuid)
			return nil
		},
	}
	return cmd
}

func simulateCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a simulated device",
		Long:  "Listen as a fake device streaming a sine tone, for testing the bridge without hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			logCfg := cheyenne.DefaultLogConfig()
			if verbose {
				logCfg.Level = "debug"
			}
			sim := cheyenne.NewSimulator(cheyenne.NewLogger(logCfg))
			if err := sim.Listen(addr); err != nil {
				return err
			}
			defer sim.Close()

			return sim.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":11700", "Listen address")
	return cmd
}
