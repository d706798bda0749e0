package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	// HTTPクライアント関連の定数
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultMaxRedirects = 10
	MaxBodySize         = int64(20 * 1024 * 1024) // 20MB: レスポンスボディの最大読み込みサイズ

	// DefaultUserAgent は、結果サイトに送信する説明的なUser-Agentです。
	DefaultUserAgent = "igc-fetch/1.0 (+https://github.com/shouni/go-igc-fetch)"

	maxErrorBodySize = 1024
)

var (
	// ErrTooManyRedirects は、リダイレクト回数が上限を超えたことを示します。
	ErrTooManyRedirects = errors.New("リダイレクト回数が上限を超えました")
	// ErrBodyTooLarge は、レスポンスボディが上限サイズを超えたことを示します。
	ErrBodyTooLarge = errors.New("レスポンスボディが最大サイズを超えました")
)

// Doer は、標準の *http.Client.Do() と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client は、固定のUser-Agentで単発のGETリクエストを行います。
// リトライはこの層では行いません (呼び出し側の責務)。
type Client struct {
	httpClient  Doer
	userAgent   string
	maxBodySize int64
}

// Option は Client の設定を行うための関数型です。
type Option func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithUserAgent は送信するUser-Agentを上書きします。空文字列は無視されます。
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxBodySize はレスポンスボディの上限サイズ (バイト) を上書きします。0以下は無視されます。
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// New は、新しいClientを生成します。
// 内部の *http.Client はリダイレクトを DefaultMaxRedirects 回まで追跡します。
func New(timeout time.Duration, options ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:       timeout,
			CheckRedirect: limitRedirects(DefaultMaxRedirects),
		},
		userAgent:   DefaultUserAgent,
		maxBodySize: MaxBodySize,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func limitRedirects(max int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("%w (%d回)", ErrTooManyRedirects, max)
		}
		return nil
	}
}

// FetchText はURLからHTMLを取得し、レスポンスの文字コードに従ってUTF-8文字列に変換して返します。
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := c.readBody(url, resp)
	if err != nil {
		return "", err
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: url, Err: fmt.Errorf("文字コードの判定に失敗しました: %w", err)}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: url, Err: fmt.Errorf("文字コードの変換に失敗しました: %w", err)}
	}
	return string(body), nil
}

// FetchBytes はURLからレスポンスボディを生のバイト配列として取得します (IGCファイルのダウンロード用)。
func (c *Client) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.readBody(url, resp)
}

// readBody は、上限サイズまでボディを読み込みます。
// Content-Length が不明 (chunked) な場合も、上限を1バイトでも超えればエラーとし、切り詰めたボディは返しません。
func (c *Client) readBody(url string, resp *http.Response) ([]byte, error) {
	tooLarge := &FetchError{Kind: KindNetwork, URL: url, Err: fmt.Errorf("%w (%dバイト)", ErrBodyTooLarge, c.maxBodySize)}

	if resp.ContentLength > c.maxBodySize {
		return nil, tooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, classify(url, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err))
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, tooLarge
	}
	return body, nil
}

// get は実際の一度のHTTP GETリクエストを実行し、2xx以外のステータスを FetchError に変換します。
// 呼び出し元が resp.Body.Close() を実行する必要があります。
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: fmt.Errorf("GETリクエスト作成に失敗しました: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &FetchError{
			Kind:       KindHTTP,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(snippet)),
		}
	}
	return resp, nil
}

// classify は、通信レベルのエラーをタイムアウトとネットワークエラーに分類します。
func classify(url string, err error) error {
	if isTimeout(err) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout exceeded")
}
