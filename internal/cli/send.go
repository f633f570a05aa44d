package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/instacrawl/internal/codec"
	"github.com/shaiso/instacrawl/internal/domain"
)

// sendMessage — тело запроса, отправляемого вручную.
type sendMessage struct {
	InstagramURL string `json:"instagram_url"`
	RequestID    string `json:"request_id"`
	Priority     int    `json:"priority"`
}

// NewSendCmd создаёт команду ручной отправки запроса в crawl_requests.
func NewSendCmd(brokerFn func() (Broker, error), outputFn func() *Output) *cobra.Command {
	var requestID string
	var priority int

	cmd := &cobra.Command{
		Use:   "send URL",
		Short: "Send a crawl request to crawl_requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			req, body, err := buildRequest(args[0], requestID, priority, time.Now())
			if err != nil {
				return err
			}

			b, err := brokerFn()
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.PublishWork(cmd.Context(), body, nil); err != nil {
				return err
			}

			out.Print(
				[]string{"REQUEST_ID", "SHORTCODE", "KIND", "PRIORITY"},
				[][]string{{req.RequestID, req.Shortcode, string(req.Kind), fmt.Sprint(req.Priority)}},
				req,
			)
			out.Success("Request sent to crawl_requests")
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "Request ID (default: manual-YYYYMMDD-HHMMSS)")
	cmd.Flags().IntVar(&priority, "priority", domain.DefaultPriority, "Request priority")

	return cmd
}

// buildRequest формирует тело запроса и проверяет его тем же декодером,
// что и worker: невалидная ссылка отклоняется до публикации.
func buildRequest(url, requestID string, priority int, now time.Time) (*domain.CrawlRequest, []byte, error) {
	if requestID == "" {
		requestID = defaultRequestID(now)
	}

	body, err := json.Marshal(sendMessage{
		InstagramURL: url,
		RequestID:    requestID,
		Priority:     priority,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := codec.Decode(body)
	if err != nil {
		return nil, nil, err
	}

	return req, body, nil
}
