// crawlctl — операторская утилита для очередей crawl-worker.
//
// Использование:
//
//	crawlctl [--rabbitmq-url URL] [--db-url DSN] [--json] <command> [flags]
//
// Команды:
//
//	send      Отправить запрос в crawl_requests
//	results   Вычитать raw_recipe_data
//	dlq       Архив и replay crawl_requests_failed
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/instacrawl/internal/cli"
	"github.com/shaiso/instacrawl/internal/config"
	"github.com/shaiso/instacrawl/internal/repo"
	"github.com/shaiso/instacrawl/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var rabbitURL string
	var dbURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "crawlctl",
		Short:         "crawlctl — operator tool for the crawl worker queues",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&rabbitURL, "rabbitmq-url", "", "RabbitMQ URL (default: from RABBITMQ_* env)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "Postgres DSN for the dead-letter archive (default: DB_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// Логи — в stderr, вывод команд — в stdout
	logger := telemetry.NewLogger(os.Stderr, "text")

	brokerFn := func() (cli.Broker, error) {
		url := rabbitURL
		if url == "" {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			url = cfg.RabbitMQURL
		}
		return cli.Dial(url, logger)
	}

	archiveFn := func(ctx context.Context) (cli.Archive, func(), error) {
		pool, err := repo.NewPool(ctx, dbURL)
		if err != nil {
			return nil, nil, err
		}

		failed := repo.NewFailedRepo(pool)
		if err := failed.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return failed, pool.Close, nil
	}

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewSendCmd(brokerFn, outputFn),
		cli.NewResultsCmd(brokerFn, outputFn),
		cli.NewDLQCmd(brokerFn, archiveFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
