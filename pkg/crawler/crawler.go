package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/shouni/go-igc-fetch/pkg/extract"
	"github.com/shouni/go-igc-fetch/pkg/httpclient"
	"github.com/shouni/go-igc-fetch/pkg/retry"
	"github.com/shouni/go-igc-fetch/pkg/target"
	"github.com/shouni/go-igc-fetch/pkg/types"
)

// Fetcher は、ページのHTMLを文字列として取得する機能のインターフェースです。
// *httpclient.Client はこのインターフェースを満たします。
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Result は、1回のクロールで得られたダウンロードタスクと、途中で記録されたエラーです。
type Result struct {
	Competition types.CompetitionInfo
	Classes     []types.ClassInfo
	Days        []types.DayInfo
	Tasks       []types.DownloadTask
	// Errors は、スキップされた子ページ (クラス/日) ごとの *BranchError です。
	Errors []error
}

// Crawler は、ScopeTarget からリンク階層 (大会 → クラス → 日 → ファイル) を順番に辿ります。
// 同時に発行されるリクエストは常に1つです。
type Crawler struct {
	fetcher     Fetcher
	extractor   extract.Extractor
	retryConfig retry.Config
	shouldRetry retry.ShouldRetryFunc
	baseURL     *url.URL
	logger      *zap.Logger
}

// Option は Crawler の設定を行うための関数型です。
type Option func(*Crawler)

// WithRetryConfig は、子ページ取得時のリトライ設定を上書きします。
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Crawler) {
		c.retryConfig = cfg
	}
}

// WithLogger は、進捗を出力するロガーを設定します。
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseURL は、起点ページのスキームとホストを差し替えます (ミラーやテスト用のスタブサイト向け)。
func WithBaseURL(base *url.URL) Option {
	return func(c *Crawler) {
		c.baseURL = base
	}
}

// New は、新しい Crawler を生成します。
func New(fetcher Fetcher, extractor extract.Extractor, options ...Option) (*Crawler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("crawler.New: Fetcher cannot be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("crawler.New: Extractor cannot be nil")
	}

	c := &Crawler{
		fetcher:     fetcher,
		extractor:   extractor,
		retryConfig: retry.DefaultConfig(),
		shouldRetry: httpclient.IsRetryable,
		logger:      zap.NewNop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Crawl は、スコープに応じてページを辿り、DownloadTask の一覧を返します。
// 起点ページの取得/解析に失敗した場合は *CrawlError を返します。
// 子ページの失敗は Result.Errors に記録され、残りの兄弟ページの処理は継続されます。
func (c *Crawler) Crawl(ctx context.Context, t target.ScopeTarget) (*Result, error) {
	rootURL := c.rebase(t.PageURL)
	c.logger.Info("クロールを開始します", zap.Stringer("scope", t), zap.String("url", rootURL))

	// 1. 起点ページ
	root, err := c.load(ctx, rootURL)
	if err != nil {
		return nil, &CrawlError{Target: t, URL: rootURL, Err: err}
	}

	res := &Result{
		Competition: types.CompetitionInfo{
			Name: orDefault(root.CompetitionName(), t.CompetitionSlug),
			Slug: t.CompetitionSlug,
		},
	}

	// 2. スコープごとの走査
	switch t.Kind {
	case target.KindCompetition:
		err = c.crawlCompetition(ctx, res, root)

	case target.KindClass:
		class := types.ClassInfo{
			Name: orDefault(root.ClassName(t.ClassSlug), t.ClassSlug),
			Slug: t.ClassSlug,
			URL:  rootURL,
		}
		res.Classes = append(res.Classes, class)
		err = c.crawlClass(ctx, res, class, root)

	case target.KindDay:
		class := types.ClassInfo{
			Name: orDefault(root.ClassName(t.ClassSlug), t.ClassSlug),
			Slug: t.ClassSlug,
		}
		day := types.DayInfo{Date: t.Date, Label: t.TaskLabel, TaskNumber: t.TaskNumber, URL: rootURL}
		res.Classes = append(res.Classes, class)
		res.Days = append(res.Days, day)
		c.collectFiles(res, class, day, root)

	default:
		return nil, &CrawlError{Target: t, URL: rootURL, Err: fmt.Errorf("未対応のスコープです: %v", t.Kind)}
	}

	c.logger.Info("クロールが完了しました",
		zap.Int("classes", len(res.Classes)),
		zap.Int("days", len(res.Days)),
		zap.Int("files", len(res.Tasks)),
		zap.Int("errors", len(res.Errors)))

	return res, err
}

// crawlCompetition は、結果一覧ページからクラスを列挙し、各クラスを辿ります。
func (c *Crawler) crawlCompetition(ctx context.Context, res *Result, root extract.Page) error {
	classes := root.Classes(res.Competition.Slug)
	c.logger.Debug("クラスを検出しました", zap.Int("classes", len(classes)))

	for _, class := range classes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("クロールが中断されました: %w", err)
		}

		page, err := c.load(ctx, class.URL)
		if err != nil {
			c.recordBranchError(res, "class", class.Slug, class.URL, err)
			continue
		}

		res.Classes = append(res.Classes, class)
		if err := c.crawlClass(ctx, res, class, page); err != nil {
			return err
		}
	}
	return nil
}

// crawlClass は、クラスのページから日を列挙し、各デイリーページのファイルを収集します。
func (c *Crawler) crawlClass(ctx context.Context, res *Result, class types.ClassInfo, page extract.Page) error {
	days := page.Days(res.Competition.Slug, class.Slug)
	c.logger.Debug("日を検出しました", zap.String("class", class.Slug), zap.Int("days", len(days)))

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("クロールが中断されました: %w", err)
		}

		dayPage, err := c.load(ctx, day.URL)
		if err != nil {
			c.recordBranchError(res, "day", class.Slug+"/"+day.Label, day.URL, err)
			continue
		}

		res.Days = append(res.Days, day)
		c.collectFiles(res, class, day, dayPage)
	}
	return nil
}

// collectFiles は、デイリーページのファイルリンク1件につき1つの DownloadTask を追加します。
func (c *Crawler) collectFiles(res *Result, class types.ClassInfo, day types.DayInfo, page extract.Page) {
	files := page.Files()
	c.logger.Debug("ファイルを検出しました",
		zap.String("class", class.Slug),
		zap.String("date", day.Date),
		zap.Int("files", len(files)))

	// クラスの表示名はスコープ (どのページにリンクがあるか) で変わりうるため、
	// 出力先が常に一致するようスラッグを使う
	for _, f := range files {
		res.Tasks = append(res.Tasks, types.DownloadTask{
			URL:             f.URL,
			CompetitionName: res.Competition.Name,
			ClassName:       class.Slug,
			Date:            day.Date,
			Callsign:        f.Callsign,
		})
	}
}

// load は、ページを取得 (一時的なエラーはリトライ) して解析します。
func (c *Crawler) load(ctx context.Context, pageURL string) (extract.Page, error) {
	var html string
	op := func() error {
		var fetchErr error
		html, fetchErr = c.fetcher.FetchText(ctx, pageURL)
		return fetchErr
	}

	cfg := c.retryConfig
	cfg.Notify = func(err error, wait time.Duration) {
		c.logger.Warn("ページ取得に失敗したためリトライします",
			zap.String("url", pageURL), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := retry.Do(ctx, cfg, fmt.Sprintf("URL(%s)のフェッチ", pageURL), op, c.shouldRetry); err != nil {
		return nil, err
	}
	return c.extractor.Parse(html, pageURL)
}

func (c *Crawler) recordBranchError(res *Result, scope, name, pageURL string, err error) {
	c.logger.Warn("ページの処理に失敗したためスキップします",
		zap.String("scope", scope), zap.String("name", name), zap.String("url", pageURL), zap.Error(err))
	res.Errors = append(res.Errors, &BranchError{Scope: scope, Name: name, URL: pageURL, Err: err})
}

// rebase は、正規URLのスキームとホストを baseURL のものに差し替えます。
func (c *Crawler) rebase(pageURL string) string {
	if c.baseURL == nil {
		return pageURL
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Scheme = c.baseURL.Scheme
	u.Host = c.baseURL.Host
	return u.String()
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// ----------------------------------------------------------------------
// エラー定義
// ----------------------------------------------------------------------

// ErrRootUnavailable は、起点ページを取得/解析できなかったことを示します。
var ErrRootUnavailable = errors.New("起点ページを取得できませんでした")

// CrawlError は、クロール全体を中止させる致命的なエラーです。
type CrawlError struct {
	Target target.ScopeTarget
	URL    string
	Err    error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("%v (%v, URL: %s): %v", ErrRootUnavailable, e.Target, e.URL, e.Err)
}

func (e *CrawlError) Unwrap() []error {
	return []error{ErrRootUnavailable, e.Err}
}

// BranchError は、スキップされた子ページ (クラスまたは日) の失敗です。
type BranchError struct {
	Scope string // "class" または "day"
	Name  string
	URL   string
	Err   error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("%s %s の処理に失敗しました (URL: %s): %v", e.Scope, e.Name, e.URL, e.Err)
}

func (e *BranchError) Unwrap() error {
	return e.Err
}
