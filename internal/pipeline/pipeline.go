package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/shouni/go-igc-fetch/pkg/config"
	"github.com/shouni/go-igc-fetch/pkg/crawler"
	"github.com/shouni/go-igc-fetch/pkg/downloader"
	"github.com/shouni/go-igc-fetch/pkg/extract"
	"github.com/shouni/go-igc-fetch/pkg/httpclient"
	"github.com/shouni/go-igc-fetch/pkg/storage"
	"github.com/shouni/go-igc-fetch/pkg/target"
	"github.com/shouni/go-igc-fetch/pkg/types"
)

// ErrIncomplete は、クロールの一部またはファイルの一部が失敗したことを示します。
var ErrIncomplete = errors.New("一部の処理に失敗しました")

// Report は、1回の実行の結果です。
type Report struct {
	Scope   target.ScopeTarget
	Crawl   *crawler.Result
	Results []types.DownloadResult
	Summary types.Summary
}

// Options は、実行時に差し替え可能な依存性です。
type Options struct {
	// BaseURL が設定されている場合、起点ページのスキームとホストを差し替えます (スタブサイト向け)。
	BaseURL *url.URL
	Logger  *zap.Logger
}

// Run は、URLの分類からクロール、ファイルの保存までを実行するメインの処理パイプラインです。
// 分類または起点ページの失敗では Report は nil になります。
// それ以外の失敗 (スキップされたページ、保存できなかったファイル) があれば、Report とともに ErrIncomplete を返します。
func Run(ctx context.Context, cfg *config.Config, rawURL string, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// 1. URLの分類 (ネットワークアクセスなし)
	scope, err := target.Classify(rawURL)
	if err != nil {
		return nil, fmt.Errorf("URLの解析に失敗しました: %w", err)
	}

	// 2. 依存性の初期化 (Client -> Extractor -> Crawler / Writer -> Runner)
	client := httpclient.New(cfg.Timeout(), httpclient.WithUserAgent(cfg.UserAgent))

	c, err := crawler.New(client, extract.NewSoaringSpot(),
		crawler.WithRetryConfig(cfg.RetryConfig()),
		crawler.WithLogger(logger),
		crawler.WithBaseURL(opts.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("Crawlerの初期化エラー: %w", err)
	}

	writer, err := storage.NewWriter(client, logger)
	if err != nil {
		return nil, fmt.Errorf("Writerの初期化エラー: %w", err)
	}
	runner, err := downloader.NewRunner(writer,
		downloader.WithDryRun(cfg.DryRun),
		downloader.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("Runnerの初期化エラー: %w", err)
	}

	// 3. クロール
	res, err := c.Crawl(ctx, scope)
	if err != nil {
		return nil, err
	}

	// 4. ダウンロードと保存
	report := &Report{Scope: scope, Crawl: res}
	report.Results, report.Summary = runner.Run(ctx, res.Tasks, cfg.Output)

	if len(res.Errors) > 0 || report.Summary.Failed > 0 {
		return report, fmt.Errorf("%w (スキップ %d 件, 失敗 %d 件)", ErrIncomplete, len(res.Errors), report.Summary.Failed)
	}
	return report, nil
}
