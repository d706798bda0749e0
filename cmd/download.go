package cmd

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/shouni/go-igc-fetch/internal/pipeline"
	"github.com/shouni/go-igc-fetch/pkg/config"
	"github.com/shouni/go-igc-fetch/pkg/types"
)

// runDownload は、パイプラインを実行して結果を out に出力します。
func runDownload(ctx context.Context, out io.Writer, logger *zap.Logger, cfg *config.Config, rawURL string, opts runOptions) error {
	report, err := pipeline.Run(ctx, cfg, rawURL, pipeline.Options{
		BaseURL: opts.baseURL,
		Logger:  logger,
	})
	if report != nil {
		printReport(out, report, cfg.DryRun)
	}
	return err
}

func printReport(out io.Writer, report *pipeline.Report, dryRun bool) {
	res := report.Crawl

	fmt.Fprintf(out, "対象: %v\n", report.Scope)
	fmt.Fprintf(out, "大会: %s\n", res.Competition.Name)
	fmt.Fprintf(out, "クロール完了: クラス %d 件, 日 %d 件, ファイル %d 件\n", len(res.Classes), len(res.Days), len(res.Tasks))
	for _, err := range res.Errors {
		fmt.Fprintf(out, "⚠️  スキップ: %v\n", err)
	}

	printResults(out, report.Results, report.Summary, dryRun)
}

func printResults(out io.Writer, results []types.DownloadResult, summary types.Summary, dryRun bool) {
	if dryRun {
		fmt.Fprintln(out, "--- 保存予定 (dry-run) ---")
	} else {
		fmt.Fprintln(out, "--- ダウンロード結果 ---")
	}

	for i, res := range results {
		if res.Error != nil {
			fmt.Fprintf(out, "❌ [%d] %s (%s)\n", i+1, res.Task.URL, res.Task.Callsign)
			fmt.Fprintf(out, "     エラー: %v\n", res.Error)
			continue
		}
		fmt.Fprintf(out, "✅ [%d] %s\n", i+1, res.Path)
	}

	fmt.Fprintln(out, "-------------------------------")
	fmt.Fprintf(out, "完了: 試行 %d 件, 成功 %d 件, 失敗 %d 件\n", summary.Attempted, summary.Succeeded, summary.Failed)
}
