package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/settlement"
	"github.com/frahmantamala/recurpay/pkg/delay"
	"github.com/frahmantamala/recurpay/pkg/redislock"
)

type Config struct {
	PlatformFeeWallet string
	BatchLimit        int
	LeaseTTL          time.Duration
	ItemDelay         time.Duration
	OrganizationDelay time.Duration
	LockTTL           time.Duration
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeExpired
	outcomeUnreconciled
)

type Scheduler struct {
	repo          RepositoryAPI
	plans         PlanSource
	organizations OrganizationSource
	executor      Executor
	locker        redislock.Locker
	cfg           Config
	now           func() time.Time
	logger        *slog.Logger
}

func NewScheduler(repo RepositoryAPI, plans PlanSource, organizations OrganizationSource, executor Executor, locker redislock.Locker, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if locker == nil {
		locker = redislock.Noop{}
	}
	return &Scheduler{
		repo:          repo,
		plans:         plans,
		organizations: organizations,
		executor:      executor,
		locker:        locker,
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// RunDueCycle charges every due subscription once. Organizations are processed in turn and
// items within one organization sequentially; a failing item never stops the batch.
func (s *Scheduler) RunDueCycle(ctx context.Context) (Summary, error) {
	lock, err := s.locker.Acquire(ctx, runLockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			s.logger.Info("billing run skipped; another run holds the lock")
			return Summary{}, ErrRunInProgress
		}
		return Summary{}, fmt.Errorf("failed to acquire billing lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release billing lock", "error", err)
		}
	}()

	started := s.now()
	due, err := s.repo.FindDue(ctx, started, s.cfg.BatchLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load due subscriptions: %w", err)
	}

	groups := groupByOrganization(due)
	summary := Summary{Organizations: len(groups)}

	s.logger.Info("billing run started", "due", len(due), "organizations", len(groups))

	for gi, group := range groups {
		if gi > 0 {
			if err := delay.For(ctx, s.cfg.OrganizationDelay); err != nil {
				return summary, err
			}
		}

		for i, sub := range group {
			if i > 0 {
				if err := delay.For(ctx, s.cfg.ItemDelay); err != nil {
					return summary, err
				}
			}

			summary.TotalProcessed++
			// a started charge runs to completion; cancellation only stops the next one
			out, paused := s.processOne(context.WithoutCancel(ctx), sub)
			switch out {
			case outcomeSuccess:
				summary.Successful++
			case outcomeFailed:
				summary.Failed++
			case outcomeSkipped:
				summary.Skipped++
			case outcomeExpired:
				summary.Expired++
			case outcomeUnreconciled:
				summary.Successful++
				summary.Unreconciled++
			}
			if paused {
				summary.Paused++
			}
		}
	}

	s.logger.Info("billing run finished",
		"total", summary.TotalProcessed,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"expired", summary.Expired,
		"paused", summary.Paused,
		"unreconciled", summary.Unreconciled,
		"duration", s.now().Sub(started))

	return summary, nil
}

func (s *Scheduler) processOne(ctx context.Context, due *subdm.Subscription) (out outcome, paused bool) {
	log := s.logger.With("subscription_id", due.ID, "organization_id", due.OrganizationID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while billing subscription", "panic", r)
			out, paused = outcomeFailed, false
		}
	}()

	now := s.now()
	sub, err := s.repo.Claim(ctx, due.ID, now, now.Add(s.cfg.LeaseTTL))
	if err != nil {
		log.Error("failed to claim subscription", "error", err)
		return outcomeFailed, false
	}
	if sub == nil {
		log.Debug("subscription claimed elsewhere or no longer due")
		return outcomeSkipped, false
	}
	keepLease := false
	defer func() {
		if keepLease {
			return
		}
		if err := s.repo.Release(context.WithoutCancel(ctx), sub.ID); err != nil {
			log.Warn("failed to release subscription lease", "error", err)
		}
	}()

	if sub.AllowanceExpired(now) {
		expired, err := s.repo.Expire(ctx, sub.ID, now)
		if err != nil {
			log.Error("failed to expire subscription", "error", err)
			return outcomeFailed, false
		}
		if !expired {
			return outcomeSkipped, false
		}
		log.Info("subscription expired; allowance ended", "allowance_expires_at", sub.AllowanceExpiresAt)
		return outcomeExpired, false
	}

	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		log.Error("failed to load plan", "error", err, "plan_id", sub.PlanID)
		return outcomeFailed, false
	}
	org, err := s.organizations.GetOrganization(ctx, sub.OrganizationID)
	if err != nil {
		log.Error("failed to load organization", "error", err)
		return outcomeFailed, false
	}
	feeAccount, err := settlement.PlatformFeeAccount(org.FeeWallet, s.cfg.PlatformFeeWallet, plan.TokenMint)
	if err != nil {
		log.Error("failed to resolve platform fee account", "error", err)
		return outcomeFailed, false
	}

	result := s.executor.Execute(ctx, settlement.Target{
		Subscription:       sub,
		Plan:               plan,
		PlatformFeeAccount: feeAccount,
	})
	if result.Success && result.Err != nil {
		// the charge landed but the ledger still shows it due; keep it claimed for reconciliation
		until := s.now().Add(ReconcileHold)
		if err := s.repo.Hold(context.WithoutCancel(ctx), sub.ID, until); err != nil {
			log.Error("failed to hold unreconciled subscription", "error", err)
			return outcomeUnreconciled, false
		}
		keepLease = true
		log.Error("subscription held for reconciliation",
			"error", result.Err,
			"signature", result.TxSignature,
			"locked_until", until)
		return outcomeUnreconciled, false
	}
	if result.Success {
		return outcomeSuccess, false
	}
	return outcomeFailed, result.Paused
}

func groupByOrganization(subs []*subdm.Subscription) [][]*subdm.Subscription {
	var groups [][]*subdm.Subscription
	index := map[string]int{}
	for _, sub := range subs {
		i, ok := index[sub.OrganizationID]
		if !ok {
			i = len(groups)
			index[sub.OrganizationID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], sub)
	}
	return groups
}
