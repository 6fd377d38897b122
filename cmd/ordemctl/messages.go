package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"ordem/internal/auth"
	"ordem/internal/cli"
	"ordem/internal/log"
	"ordem/internal/messaging"
	"ordem/internal/realtime"
)

func newMessagesCmd(a *app) *cobra.Command {
	messages := &cobra.Command{Use: "messages", Short: "Inspect conversations"}

	var baseURL, email, conversation string
	var poll time.Duration
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Follow a conversation on a running server",
		Long: `Follow a conversation as one of its participants. A session token is
signed with the configured secret, new messages arrive over the realtime
socket and a periodic poll fills any gap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.store()
			if err != nil {
				return err
			}
			acc, err := lookupAccount(cmd.Context(), st, email)
			if err != nil {
				return err
			}
			token, err := auth.NewJWTManager(a.cfg.SessionSecret, a.cfg.SessionTTL).Generate(acc)
			if err != nil {
				return err
			}
			a.close()

			ctx, stop := cli.SignalContext(a.logger)
			defer stop()
			return a.tail(ctx, baseURL, token, conversation, poll)
		},
	}
	tail.Flags().StringVar(&baseURL, "url", a.cfg.BaseURL, "server base URL")
	tail.Flags().StringVar(&email, "email", "", "participant email")
	tail.Flags().StringVar(&conversation, "conversation", "", "conversation id")
	tail.Flags().DurationVar(&poll, "poll", messaging.DefaultPollInterval, "poll interval")
	_ = tail.MarkFlagRequired("email")
	_ = tail.MarkFlagRequired("conversation")

	messages.AddCommand(tail)
	return messages
}

func (a *app) tail(ctx context.Context, baseURL, token, conversationID string, poll time.Duration) error {
	logger := a.logger.WithComponent(log.ComponentMessaging)

	rt := realtime.NewClient(baseURL, token)
	if err := rt.Connect(ctx); err != nil {
		logger.Warn("Realtime unavailable, polling only", log.FieldError, err)
		rt = nil
	} else {
		defer rt.Close()
	}

	timeline := messaging.NewTimeline()
	var mu sync.Mutex
	var printed int64
	syncer := &messaging.Syncer{
		ConversationID: conversationID,
		Timeline:       timeline,
		Fetcher:        messaging.HTTPFetcher{BaseURL: baseURL, Token: token},
		Realtime:       rt,
		PollInterval:   poll,
		Logger:         logger,
		OnChange: func() {
			mu.Lock()
			defer mu.Unlock()
			for _, e := range timeline.Entries() {
				if e.Pending || e.Seq <= printed {
					continue
				}
				a.printf("#%d %s %s: %s\n", e.Seq, e.CreatedAt.Local().Format("15:04"), e.SenderID, e.Body)
				printed = e.Seq
			}
		},
	}

	err := syncer.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
