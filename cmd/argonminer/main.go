// Command argonminer is the CLI entry point, wiring config, pool
// connections, hash backends, dev-fee rotation, and the status server
// together. Grounded on main.go's cobra mainCmd/versionCmd plus
// original_source/src/Miner/main.cpp's start().
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/AGPFMiner/argonminer/internal/config"
	"github.com/AGPFMiner/argonminer/internal/devshare"
	"github.com/AGPFMiner/argonminer/internal/logging"
	"github.com/AGPFMiner/argonminer/internal/manager"
	"github.com/AGPFMiner/argonminer/internal/poolclient"
	"github.com/AGPFMiner/argonminer/internal/statusserver"
	"github.com/AGPFMiner/argonminer/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

var mainCmd = &cobra.Command{
	Use:   "argonminer",
	Short: "argonminer: a pool-mining client for Argon2-family coins",
	Long:  "argonminer mines against a preference-ordered list of pools, failing over and rotating a dev-fee share automatically.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mine()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	types.Version = version
	config.RegisterFlags(mainCmd)
	mainCmd.AddCommand(versionCmd)
}

func main() {
	if err := mainCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// devPools returns the built-in developer-donation pool, mirroring
// original_source/src/Miner/main.cpp's getDevPools().
func devPools() []types.Pool {
	return []types.Pool{
		{
			Host:                  "donate.futuregadget.xyz",
			Port:                  3333,
			Username:              "donate",
			Algorithm:             "turtlecoin",
			DisableAutoAlgoSelect: true,
			NiceHash:              true,
		},
	}
}

func mine() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel)
	defer logger.Sync()

	if len(cfg.Pools) == 0 {
		logger.Error("no pools configured")
		return errors.New("mine: no pools configured")
	}

	hw := cfg.Hardware.ToHardwareConfig()

	userPool := poolclient.New(cfg.Pools, logger)
	devPool := poolclient.New(devPools(), logger)

	userMgr := manager.New(userPool, hw, userPool, logger, false)
	devMgr := manager.New(devPool, hw, devPool, logger, true)

	config.WatchConfig(func(updated *config.Config) {
		logging.SetLevel(updated.LogLevel)
	})

	go func() {
		if err := statusserver.ListenAndServe(cfg.StatusListen, userMgr, devMgr); err != nil {
			logger.Warn("status server stopped", zap.Error(err))
		}
	}()

	scheduler := devshare.New(userMgr, devMgr, cfg.DevFeePercent, logger)
	scheduler.Run()

	return nil
}
