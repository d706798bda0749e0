package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind は、FetchError の分類です。
type ErrorKind int

const (
	// KindHTTP は2xx以外のステータスコードを示します。
	KindHTTP ErrorKind = iota + 1
	// KindNetwork は接続レベルの失敗を示します。
	KindNetwork
	// KindTimeout は設定されたタイムアウトの超過を示します。
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// FetchError は、ページ取得の失敗を表すカスタムエラー型です。
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int    // KindHTTP の場合のみ
	Body       string // KindHTTP の場合のレスポンスボディ先頭部分
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTP:
		if e.Body != "" {
			return fmt.Sprintf("HTTPステータスコードエラー: %d %s (URL: %s), ボディ: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL, e.Body)
		}
		return fmt.Sprintf("HTTPステータスコードエラー: %d %s (URL: %s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
	case KindTimeout:
		return fmt.Sprintf("HTTPリクエストがタイムアウトしました (URL: %s): %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("HTTPリクエストに失敗しました (ネットワーク/接続エラー, URL: %s): %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusCode は、エラーがHTTPステータスエラーであればそのステータスコードを返します。
func StatusCode(err error) (int, bool) {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == KindHTTP {
		return fe.StatusCode, true
	}
	return 0, false
}

// IsRetryable は、エラーが一時的なもの (5xx, 429, ネットワーク, タイムアウト) かどうかを判定します。
// この関数は retry.ShouldRetryFunc 型のシグネチャを満たします。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// 1. 呼び出し元によるキャンセルはリトライしない
	if errors.Is(err, context.Canceled) {
		return false
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}

	switch fe.Kind {
	case KindHTTP:
		// 2. 5xx と 429 のみリトライ対象、その他の4xxは非リトライ対象
		return fe.StatusCode >= 500 || fe.StatusCode == http.StatusTooManyRequests
	case KindNetwork:
		// 3. リダイレクトループと上限超過のボディは何度試しても同じ結果になる
		return !errors.Is(fe.Err, ErrTooManyRedirects) && !errors.Is(fe.Err, ErrBodyTooLarge)
	case KindTimeout:
		return true
	}
	return false
}
