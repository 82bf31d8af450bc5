// Command dirbeam mirrors a directory tree from one machine to another over
// a single WebSocket. One binary, two mutually exclusive modes:
//
//	dirbeam --port 9000 --output-dir ./mirror          # receiver
//	dirbeam --to ws://host:9000 --from ./src           # sender
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dirbeam/dirbeam/internal/config"
	"github.com/dirbeam/dirbeam/internal/logging"
	"github.com/dirbeam/dirbeam/internal/receiver"
	"github.com/dirbeam/dirbeam/internal/sender"
)

const version = "v0.1.0"

var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	recvCfg, err := config.ReceiverDefaults()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	sendCfg, err := config.SenderDefaults()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	var mode string
	logLevel := recvCfg.LogLevel

	root := &cobra.Command{
		Use:           "dirbeam",
		Short:         "one-shot directory mirroring over a WebSocket",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			receiverFlags := cmd.Flags().Changed("port") || cmd.Flags().Changed("output-dir")
			senderFlags := cmd.Flags().Changed("to") || cmd.Flags().Changed("from")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			switch {
			case receiverFlags && !senderFlags:
				mode = "receiver"
				recvCfg.LogLevel = logLevel
				return runReceiver(ctx, recvCfg)
			case senderFlags && !receiverFlags:
				mode = "sender"
				sendCfg.LogLevel = logLevel
				return runSender(ctx, sendCfg)
			default:
				return fmt.Errorf("%w: pass either --port/--output-dir (receiver) or --to/--from (sender)", errUsage)
			}
		},
	}

	root.Flags().SortFlags = false
	root.Flags().IntVar(&recvCfg.Port, "port", 0, "receiver: port to listen on")
	root.Flags().StringVar(&recvCfg.OutputDir, "output-dir", "", "receiver: destination directory")
	root.Flags().StringVar(&sendCfg.To, "to", "", "sender: receiver address (ws://host:port)")
	root.Flags().StringVar(&sendCfg.From, "from", "", "sender: source directory")
	root.Flags().StringVar(&logLevel, "log-level", logLevel, "log level (debug, info, warn, error)")
	root.Flags().IntVar(&sendCfg.ChunkSize, "chunk-size", sendCfg.ChunkSize, "sender: chunk payload size in bytes")
	root.Flags().IntVar(&sendCfg.ParallelFiles, "parallel-files", sendCfg.ParallelFiles, "sender: max concurrent file transfers")

	root.SetArgs(args)
	err = root.Execute()
	// cobra surfaces flag-parse failures here; treat them as usage errors.
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, err)
	return exitCode(mode, err)
}

func runReceiver(ctx context.Context, cfg config.Receiver) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	logger := logging.New("dirbeam-recv", cfg.LogLevel)

	r, err := receiver.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	return r.Run(ctx)
}

func runSender(ctx context.Context, cfg config.Sender) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	logger := logging.New("dirbeam-send", cfg.LogLevel)

	s, err := sender.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	if err := s.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted by the user: graceful, exit 0.
			return nil
		}
		logger.Error("sync failed", "error", err)
		return err
	}
	return nil
}

func exitCode(mode string, err error) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	switch mode {
	case "receiver":
		switch {
		case errors.Is(err, receiver.ErrAlreadyRunning):
			return 1
		case errors.Is(err, receiver.ErrBind):
			return 2
		default:
			return 3
		}
	case "sender":
		switch {
		case errors.Is(err, sender.ErrConnect):
			return 1
		case errors.Is(err, sender.ErrSource):
			return 2
		default:
			return 3
		}
	default:
		// Flag parsing failed before a mode was chosen.
		return 2
	}
}
