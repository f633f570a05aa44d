package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/instacrawl/internal/codec"
	"github.com/shaiso/instacrawl/internal/domain"
	"github.com/shaiso/instacrawl/internal/mq"
	"github.com/shaiso/instacrawl/internal/repo"
	"github.com/shaiso/instacrawl/internal/retry"
)

// NewDLQCmd создаёт группу команд для crawl_requests_failed.
func NewDLQCmd(brokerFn func() (Broker, error), archiveFn func(ctx context.Context) (Archive, func(), error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage dead-lettered crawl requests",
	}

	cmd.AddCommand(
		newDLQArchiveCmd(brokerFn, archiveFn, outputFn),
		newDLQListCmd(archiveFn, outputFn),
		newDLQShowCmd(archiveFn, outputFn),
		newDLQReplayCmd(brokerFn, outputFn),
	)

	return cmd
}

func newDLQArchiveCmd(brokerFn func() (Broker, error), archiveFn func(ctx context.Context) (Archive, func(), error), outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move dead letters from crawl_requests_failed into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			archive, closeArchive, err := archiveFn(ctx)
			if err != nil {
				return err
			}
			defer closeArchive()

			b, err := brokerFn()
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := archiveDeadLetters(ctx, b, archive, limit, time.Now())
			if n > 0 {
				out.Success(fmt.Sprintf("Archived %d dead letter(s)", n))
			}
			if err != nil {
				return err
			}
			if n == 0 {
				out.Success("No dead letters to archive")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of dead letters to archive (0 = all)")

	return cmd
}

func newDLQListCmd(archiveFn func(ctx context.Context) (Archive, func(), error), outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			archive, closeArchive, err := archiveFn(ctx)
			if err != nil {
				return err
			}
			defer closeArchive()

			failures, err := archive.List(ctx, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "SOURCE_URL", "FAILED_AT", "ERROR"}
			rows := make([][]string, len(failures))
			for i, f := range failures {
				rows[i] = []string{
					f.ID.String(),
					orDash(f.SourceURL),
					f.FailedAt.Format(time.RFC3339),
					retry.Truncate(f.Error, 80),
				}
			}

			out.Print(headers, rows, failures)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newDLQShowCmd(archiveFn func(ctx context.Context) (Archive, func(), error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an archived dead letter with its original message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			archive, closeArchive, err := archiveFn(ctx)
			if err != nil {
				return err
			}
			defer closeArchive()

			f, err := archive.GetByID(ctx, id)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"FIELD", "VALUE"},
				[][]string{
					{"ID", f.ID.String()},
					{"SOURCE_URL", orDash(f.SourceURL)},
					{"FAILED_AT", f.FailedAt.Format(time.RFC3339)},
					{"ARCHIVED_AT", f.ArchivedAt.Format(time.RFC3339)},
					{"ERROR", f.Error},
					{"ORIGINAL", string(f.OriginalMessage)},
				},
				f,
			)
			return nil
		},
	}
}

func newDLQReplayCmd(brokerFn func() (Broker, error), outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Republish dead-lettered requests to crawl_requests with a fresh retry state",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			b, err := brokerFn()
			if err != nil {
				return err
			}
			defer b.Close()

			stats, err := replayDeadLetters(cmd.Context(), b, limit)
			if stats.Replayed > 0 || stats.Skipped > 0 {
				out.Success(fmt.Sprintf("Replayed %d, skipped %d (left in crawl_requests_failed)", stats.Replayed, stats.Skipped))
			}
			if err != nil {
				return err
			}
			if stats.Replayed == 0 && stats.Skipped == 0 {
				out.Success("No dead letters to replay")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of dead letters to replay (0 = all)")

	return cmd
}

// archiveDeadLetters переносит dead letters в архив.
//
// Сообщение подтверждается только после записи в базу. Нераспознанный
// dead letter архивируется как есть, с ошибкой разбора в поле error.
// При ошибке записи сообщение возвращается в очередь и обход прекращается.
func archiveDeadLetters(ctx context.Context, b Broker, archive Archive, limit int, now time.Time) (int, error) {
	archived := 0

	err := drain(ctx, b, mq.QueueFailed, limit, func(d *mq.Delivery) (bool, error) {
		rec, err := codec.DecodeFailure(d.Body())
		if err != nil {
			rec = &domain.FailedRecord{
				OriginalMessage: codec.OriginalMessage(d.Body()),
				Error:           fmt.Sprintf("unreadable dead letter: %v", err),
				FailedAt:        domain.EpochSeconds{Time: now},
			}
		}

		err = archive.Insert(ctx, domain.NewArchivedFailure(rec, now))
		if err != nil && !errors.Is(err, repo.ErrAlreadyExists) {
			return true, err
		}

		if err := d.Ack(); err != nil {
			return false, fmt.Errorf("ack dead letter: %w", err)
		}
		archived++
		return false, nil
	})

	return archived, err
}

// replayStats — итог replay.
type replayStats struct {
	Replayed int
	Skipped  int
}

// replayDeadLetters публикует исходные запросы обратно в crawl_requests.
//
// Заголовки retry сбрасываются: запрос начинает с нулевого счётчика.
// Dead letter, чей исходный запрос не проходит валидацию, не переигрывается
// и остаётся в очереди.
func replayDeadLetters(ctx context.Context, b Broker, limit int) (replayStats, error) {
	var stats replayStats

	err := drain(ctx, b, mq.QueueFailed, limit, func(d *mq.Delivery) (bool, error) {
		rec, err := codec.DecodeFailure(d.Body())
		if err != nil {
			stats.Skipped++
			return true, nil
		}
		if _, err := codec.Decode(rec.OriginalMessage); err != nil {
			stats.Skipped++
			return true, nil
		}

		headers := retry.WithoutRetryHeaders(d.Headers())
		if err := b.PublishWork(ctx, rec.OriginalMessage, headers); err != nil {
			return true, fmt.Errorf("replay: %w", err)
		}

		if err := d.Ack(); err != nil {
			return false, fmt.Errorf("ack dead letter: %w", err)
		}
		stats.Replayed++
		return false, nil
	})

	return stats, err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
