package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries は、初回試行に追加されるリトライ回数の既定値です。
	DefaultMaxRetries = 2

	// バックオフのカスタム設定
	InitialBackoffInterval = 500 * time.Millisecond
	MaxBackoffInterval     = 5 * time.Second
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// NotifyFunc は、リトライの直前にエラーと待機時間を受け取ります。
type NotifyFunc func(err error, wait time.Duration)

// Config はリトライ動作を設定するための構造体です。
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Notify          NotifyFunc // 任意
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: InitialBackoffInterval,
		MaxInterval:     MaxBackoffInterval,
	}
}

func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	// 経過時間ではなく回数で打ち切る
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)
}

// Do は指数バックオフを使用して op を実行します。
// shouldRetryFn が false を返したエラーは即座に返され、リトライ上限に達した場合は最後のエラーをラップして返します。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc) error {
	var lastErr error
	attempts := 0

	retryableOp := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if shouldRetryFn != nil && shouldRetryFn(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	var notify backoff.Notify
	if cfg.Notify != nil {
		notify = backoff.Notify(cfg.Notify)
	}

	err := backoff.RetryNotify(retryableOp, newBackOffPolicy(ctx, cfg), notify)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if lastErr == nil {
			return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, ctxErr)
		}
		return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w (最終エラー: %w)", operationName, ctxErr, lastErr)
	}
	// backoff は永続エラーを展開して返すため、1回で打ち切った場合は元のエラーがそのまま返る
	if attempts <= 1 {
		return lastErr
	}
	return fmt.Errorf("%sに失敗しました (%d回試行): %w", operationName, attempts, lastErr)
}
