/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/movielist/apiserver/config"
	"github.com/movielist/apiserver/internal/db"
	"github.com/movielist/apiserver/internal/logging"
	"github.com/movielist/apiserver/internal/services"
	"github.com/movielist/apiserver/internal/store"
	"github.com/spf13/cobra"
)

// sweepCmd deletes expired refresh tokens and recovery challenges once.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired refresh tokens and recovery codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.Setup(cfg.Log)

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		sweeper := services.NewSweeper(
			store.NewRefreshTokenRepository(conn),
			store.NewRecoveryRepository(conn),
			logger,
			nil,
		)
		result, err := sweeper.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("sweep finished",
			"refresh_tokens", result.RefreshTokens,
			"challenges", result.Challenges,
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
