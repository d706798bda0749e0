package downloader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shouni/go-igc-fetch/pkg/types"
)

// FileWriter は、1タスク分のファイルを書き込む機能のインターフェースです。
// *storage.Writer はこのインターフェースを満たします。
type FileWriter interface {
	Path(task types.DownloadTask, outputRoot string) (string, error)
	Write(ctx context.Context, task types.DownloadTask, outputRoot string) (string, error)
}

// Downloader は DownloadTask の一覧を処理する機能のインターフェースです。
type Downloader interface {
	Run(ctx context.Context, tasks []types.DownloadTask, outputRoot string) ([]types.DownloadResult, types.Summary)
}

// Runner は Downloader インターフェースを実装する逐次処理構造体です。
// 同時に書き込まれるファイルは常に1つです。
type Runner struct {
	writer FileWriter
	logger *zap.Logger
	dryRun bool
}

// Option は Runner の設定を行うための関数型です。
type Option func(*Runner)

// WithDryRun は、ダウンロードせずに出力予定パスのみを解決するモードを設定します。
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// WithLogger は、進捗を出力するロガーを設定します。
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner は Runner を初期化します。
func NewRunner(writer FileWriter, options ...Option) (*Runner, error) {
	if writer == nil {
		return nil, fmt.Errorf("downloader.NewRunner: FileWriter cannot be nil")
	}
	r := &Runner{
		writer: writer,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Run は Downloader インターフェースのメソッドを実装します。
// タスクは入力順に処理され、1件の失敗で残りの処理が止まることはありません。
// コンテキストがキャンセルされた場合、未処理のタスクはキャンセルエラーとして記録されます。
func (r *Runner) Run(ctx context.Context, tasks []types.DownloadTask, outputRoot string) ([]types.DownloadResult, types.Summary) {
	results := make([]types.DownloadResult, 0, len(tasks))

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			results = append(results, types.DownloadResult{
				Task:  task,
				Error: fmt.Errorf("ダウンロードが中断されました: %w", err),
			})
			continue
		}

		path, err := r.process(ctx, task, outputRoot)
		if err != nil {
			r.logger.Warn("ファイルの保存に失敗しました",
				zap.String("url", task.URL), zap.String("callsign", task.Callsign), zap.Error(err))
		} else {
			r.logger.Debug("ファイルを保存しました",
				zap.Int("index", i+1), zap.Int("total", len(tasks)), zap.String("path", path))
		}

		results = append(results, types.DownloadResult{Task: task, Path: path, Error: err})
	}

	summary := types.Summarize(results)
	r.logger.Info("ダウンロードが完了しました",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Bool("dry_run", r.dryRun))

	return results, summary
}

func (r *Runner) process(ctx context.Context, task types.DownloadTask, outputRoot string) (string, error) {
	if r.dryRun {
		return r.writer.Path(task, outputRoot)
	}
	return r.writer.Write(ctx, task, outputRoot)
}
