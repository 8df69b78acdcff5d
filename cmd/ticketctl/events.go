package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/infra"
)

var paymentEvents = []domain.EventType{
	domain.EventPaymentCreated,
	domain.EventPaymentPaid,
	domain.EventPaymentFailed,
	domain.EventPaymentApproved,
	domain.EventPaymentCheckedIn,
	domain.EventPaymentArchived,
	domain.EventPaymentDeleted,
}

func eventsCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail payment lifecycle events from Kafka",
		Long: `Consumes every ticketgate.payment.* topic the outbox relay publishes
to and prints one line per event until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			topics := make([]string, 0, len(paymentEvents))
			for _, et := range paymentEvents {
				topics = append(topics, infra.Topic(string(domain.AggregatePayment), string(et)))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topics, group, newLogger())
			defer consumer.Close()

			out := cmd.OutOrStdout()
			for {
				msg, err := consumer.ReadMessage(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("read message: %w", err)
				}
				fmt.Fprintf(out, "%s %s %s %s\n",
					msg.Time.Format("2006-01-02T15:04:05Z07:00"), msg.Topic, msg.Key, msg.Value)
			}
		},
	}
	cmd.Flags().StringVar(&group, "group", "ticketctl", "consumer group id")
	return cmd
}
