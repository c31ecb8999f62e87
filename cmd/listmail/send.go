package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/mailing"
	"github.com/foxzi/listmail/internal/repository"
	"github.com/foxzi/listmail/internal/transport"
)

var sendCmd = &cobra.Command{
	Use:   "send <mailing-id>",
	Short: "Send a mailing to all of its recipients",
	Long: `Send a mailing that has not been sent yet. Every recipient gets one delivery
attempt; failures are recorded and do not stop the run. A mailing that is
already started or finished is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid mailing id: %s", args[0])
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, cmd.ErrOrStderr())

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	tr, closer, err := transport.New(cfg.Transport, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	dispatcher := mailing.NewDispatcher(repository.NewDispatchStore(database.DB), tr, cfg.Transport.From, logger)

	result, err := dispatcher.Dispatch(context.Background(), id)
	switch {
	case errors.Is(err, mailing.ErrInvalidTransition):
		return fmt.Errorf("mailing #%d has already been sent or is in progress", id)
	case errors.Is(err, mailing.ErrNotFound):
		return fmt.Errorf("mailing #%d not found", id)
	case result == nil:
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
	if err != nil {
		return fmt.Errorf("mailing #%d did not complete cleanly: %w", id, err)
	}
	return nil
}
