package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Sender ставит запрос на запуск теста в очередь.
type Sender interface {
	SendTestRequest(ctx context.Context, testID string) error
}

// SenderFactory открывает очередь. close освобождает соединение.
type SenderFactory func(ctx context.Context) (sender Sender, close func(), err error)

// NewEnqueueCmd создаёт команду, публикующую {"test_id": ...} для каждого аргумента.
func NewEnqueueCmd(senderFn SenderFactory, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue TEST_ID...",
		Short: "Queue test jobs for execution",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			sender, closeFn, err := senderFn(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			out := outputFn()
			for _, id := range args {
				if err := sender.SendTestRequest(ctx, id); err != nil {
					return fmt.Errorf("enqueue %s: %w", id, err)
				}
				out.Success("Queued " + id)
			}
			return nil
		},
	}
}
