// Package lifecycle はチャレンジ状態のバックグラウンド遷移処理を提供する。
// 定期スイープでRECRUITING→IN_PROGRESS、IN_PROGRESS→COMPLETEDの
// 時刻起因の遷移を適用する。
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/courseman/internal/challenge"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// Sweeper はチャレンジの時刻起因の状態遷移を定期適用する。
// 遷移はUpdateStatusの条件付き更新で行うため、複数インスタンスが
// 同時にスイープしても二重遷移は起きない。
type Sweeper struct {
	challengeRepo repository.ChallengeRepository
	metrics       challenge.MetricsRecorder
	logger        *slog.Logger
	now           func() time.Time
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
func NewSweeper(
	challengeRepo repository.ChallengeRepository,
	metrics challenge.MetricsRecorder,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		challengeRepo: challengeRepo,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ライフサイクルスイープを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ライフサイクルスイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ライフサイクルスイープを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("ライフサイクルスイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は遷移候補の状態（RECRUITING、IN_PROGRESS）のチャレンジを
// 1回走査し、予定時刻を過ぎたものに遷移を適用する。
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := s.now()
	transitioned := 0

	for _, status := range []model.ChallengeStatus{
		model.ChallengeStatusRecruiting,
		model.ChallengeStatusInProgress,
	} {
		challenges, err := s.challengeRepo.ListByStatus(ctx, status)
		if err != nil {
			return err
		}

		for _, ch := range challenges {
			next, due := challenge.ScheduledStatus(ch, s.now())
			if !due {
				continue
			}

			// 条件付き更新。他インスタンスが先に遷移させた場合は何もしない。
			updated, err := s.challengeRepo.UpdateStatus(ctx, ch.ID, ch.Status, next)
			if err != nil {
				s.logger.Error("チャレンジの状態遷移に失敗しました",
					slog.String("challenge_id", ch.ID),
					slog.String("from", string(ch.Status)),
					slog.String("to", string(next)),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !updated {
				continue
			}

			s.metrics.RecordLifecycleTransition(string(ch.Status), string(next))
			s.logger.Info("チャレンジの状態を遷移させました",
				slog.String("challenge_id", ch.ID),
				slog.String("from", string(ch.Status)),
				slog.String("to", string(next)),
			)
			transitioned++
		}
	}

	duration := time.Since(start)
	if transitioned > 0 {
		s.logger.Info("ライフサイクルスイープが完了しました",
			slog.Int("transitioned", transitioned),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
	}

	return nil
}
