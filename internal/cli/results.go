package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/instacrawl/internal/codec"
	"github.com/shaiso/instacrawl/internal/mq"
)

// resultRow — запись из raw_recipe_data для вывода.
type resultRow struct {
	URL       string          `json:"url"`
	Author    string          `json:"author"`
	Timestamp string          `json:"timestamp"`
	Media     int             `json:"media"`
	Likes     string          `json:"likes"`
	Raw       json.RawMessage `json:"record,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewResultsCmd создаёт команду чтения результатов из raw_recipe_data.
// Прочитанные сообщения подтверждаются и удаляются из очереди.
func NewResultsCmd(brokerFn func() (Broker, error), outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Drain and print records from raw_recipe_data",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			b, err := brokerFn()
			if err != nil {
				return err
			}
			defer b.Close()

			rows, err := drainResults(cmd.Context(), b, limit)
			if err != nil {
				return err
			}

			if len(rows) == 0 {
				out.Success("No results in raw_recipe_data")
				return nil
			}

			headers := []string{"URL", "AUTHOR", "TIMESTAMP", "MEDIA", "LIKES"}
			table := make([][]string, len(rows))
			for i, r := range rows {
				if r.Error != "" {
					table[i] = []string{"-", "-", "-", "-", "invalid: " + r.Error}
					continue
				}
				table[i] = []string{r.URL, r.Author, r.Timestamp, strconv.Itoa(r.Media), r.Likes}
			}

			out.Print(headers, table, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of records to drain (0 = all)")

	return cmd
}

// drainResults забирает до limit записей и подтверждает каждую.
// Нераспознанная запись тоже подтверждается и выводится с ошибкой.
func drainResults(ctx context.Context, b Broker, limit int) ([]resultRow, error) {
	var rows []resultRow

	err := drain(ctx, b, mq.QueueResults, limit, func(d *mq.Delivery) (bool, error) {
		row := resultRow{Raw: json.RawMessage(d.Body())}
		if !json.Valid(d.Body()) {
			row.Raw = nil
		}

		rec, err := codec.DecodeResult(d.Body())
		if err != nil {
			row.Error = err.Error()
		} else {
			row.URL = rec.URL
			row.Author = rec.Author
			row.Timestamp = rec.Timestamp.Format(time.RFC3339)
			row.Media = len(rec.MediaURLs)
			row.Likes = "-"
			if rec.LikesCount != nil {
				row.Likes = strconv.Itoa(*rec.LikesCount)
			}
		}

		if err := d.Ack(); err != nil {
			return false, fmt.Errorf("ack result: %w", err)
		}
		rows = append(rows, row)
		return false, nil
	})

	return rows, err
}
