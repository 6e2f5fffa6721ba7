package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DispatchReport aggregates the outcome of every send of a run
type DispatchReport struct {
	Sent   int
	Errors []string
}

// NotificationDispatcher sends both directional notifications of every pair
type NotificationDispatcher struct {
	sender       NotificationSender
	intros       IntroWriter
	concurrency  int
	sendTimeout  time.Duration
	introTimeout time.Duration
	logger       *zap.Logger
}

// NewNotificationDispatcher creates a new dispatcher. intros may be nil.
func NewNotificationDispatcher(
	sender NotificationSender,
	intros IntroWriter,
	concurrency int,
	sendTimeout time.Duration,
	introTimeout time.Duration,
	logger *zap.Logger,
) *NotificationDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &NotificationDispatcher{
		sender:       sender,
		intros:       intros,
		concurrency:  concurrency,
		sendTimeout:  sendTimeout,
		introTimeout: introTimeout,
		logger:       logger,
	}
}

// Dispatch notifies both sides of every pair. A failed send is recorded and never
// stops any other send; nothing is retried.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, runID string, pairs []Pair) DispatchReport {
	// two slots per pair: A about B, then B about A
	outcomes := make([]error, 2*len(pairs))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range pairs {
		pair := &pairs[i]
		slot := 2 * i
		g.Go(func() error {
			var both errgroup.Group
			both.Go(func() error {
				outcomes[slot] = d.notify(ctx, runID, &pair.A, &pair.B)
				return nil
			})
			both.Go(func() error {
				outcomes[slot+1] = d.notify(ctx, runID, &pair.B, &pair.A)
				return nil
			})
			return both.Wait()
		})
	}
	_ = g.Wait()

	report := DispatchReport{}
	for _, err := range outcomes {
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Sent++
	}
	return report
}

// notify tells recipient about match
func (d *NotificationDispatcher) notify(ctx context.Context, runID string, recipient, match *Candidate) error {
	n := &Notification{
		RunID:            runID,
		RecipientID:      recipient.ID,
		RecipientAddress: recipient.Address,
		RecipientName:    recipient.Name,
		Match: MatchCard{
			ProfileID:  match.ID,
			Name:       match.Name,
			AvatarPath: match.AvatarPath,
			Gender:     match.SelfGender,
			AgeRange:   match.SelfAgeRange,
			Interests:  match.SelfInterests,
		},
		Intro: d.intro(ctx, recipient, match),
	}

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	if err := d.sender.Send(sendCtx, n); err != nil {
		d.logger.Warn("Failed to send match notification",
			zap.String("run_id", runID),
			zap.String("recipient_id", recipient.ID),
			zap.String("match_id", match.ID),
			zap.Error(err))
		return fmt.Errorf("failed to notify profile %s about %s: %w", recipient.ID, match.ID, err)
	}

	d.logger.Debug("Sent match notification",
		zap.String("run_id", runID),
		zap.String("recipient_id", recipient.ID),
		zap.String("match_id", match.ID))
	return nil
}

// intro asks the intro writer for a personal line; failures yield no intro
func (d *NotificationDispatcher) intro(ctx context.Context, recipient, match *Candidate) string {
	if d.intros == nil {
		return ""
	}

	introCtx := ctx
	if d.introTimeout > 0 {
		var cancel context.CancelFunc
		introCtx, cancel = context.WithTimeout(ctx, d.introTimeout)
		defer cancel()
	}

	text, err := d.intros.WriteIntro(introCtx, recipient.Profile, match.Profile)
	if err != nil {
		d.logger.Warn("Failed to write intro, sending without it",
			zap.String("recipient_id", recipient.ID),
			zap.Error(err))
		return ""
	}
	return text
}
