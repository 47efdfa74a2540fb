// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command bridged runs the socket bridge as a standalone daemon. It
// prints the bound socket path on stdout so wrappers launched separately
// can find it, then serves until one of the shutdown signals arrives.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"code.hybscloud.com/bridge"
	"code.hybscloud.com/bridge/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		socketPath string
		logLevel   string
		logFile    string
	)
	cmd := &cobra.Command{
		Use:           "bridged",
		Short:         "Unix-socket bridge between host-language wrappers and a remote data store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := &bridge.Config{}
			if configPath != "" {
				loaded, err := bridge.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			// Flags win over the file.
			if socketPath != "" {
				cfg.SocketPath = socketPath
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFile != "" {
				cfg.LogFile = logFile
			}

			level, err := logging.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logging.Init(level, cfg.LogFile)

			bound := make(chan error, 1)
			done := make(chan struct{})
			go func() {
				defer close(done)
				bridge.RunSocketListener(func(path string, err error) {
					if err != nil {
						bound <- err
						return
					}
					fmt.Fprintln(cmd.OutOrStdout(), path)
					bound <- nil
				}, cfg.Options()...)
			}()
			if err := <-bound; err != nil {
				return err
			}
			// The listener returns on the shutdown signals.
			<-done
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&socketPath, "socket-path", "", "override the per-process socket path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (error, warn, info, debug, trace)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "append logs to this file instead of stderr")
	return cmd
}
