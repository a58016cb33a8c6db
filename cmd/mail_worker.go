/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/movielist/apiserver/config"
	"github.com/movielist/apiserver/internal/logging"
	"github.com/movielist/apiserver/internal/mail"
	"github.com/movielist/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// mailWorkerCmd consumes queued recovery mail and delivers it over SMTP.
var mailWorkerCmd = &cobra.Command{
	Use:   "mail-worker",
	Short: "Deliver queued mail over SMTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.Setup(cfg.Log)

		queue, err := mq.NewFromConfig(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		sender, err := mail.NewSMTPSender(cfg.Mail.SMTP)
		if err != nil {
			return fmt.Errorf("mail worker needs SMTP settings: %w", err)
		}

		err = mail.NewWorker(queue, cfg.Mail.Channel, sender, logger).Run(cmd.Context())
		if errors.Is(err, context.Canceled) {
			logger.Info("mail worker stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(mailWorkerCmd)
}
