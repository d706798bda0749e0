package extract

import (
	"fmt"

	"github.com/shouni/go-igc-fetch/pkg/types"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DIP)
// ----------------------------------------------------------------------

// Extractor は、結果ページのHTMLを解析して Page を返す機能のインターフェースを定義します。
// HTML構造への依存はこのインターフェースの実装側に閉じ込め、
// Crawler は解析戦略 (構造的クエリ / パターンマッチ) を知らずに利用できます。
type Extractor interface {
	// Parse は pageURL から取得したHTMLを解析します。
	// 相対リンクは pageURL を基準に解決されます。
	Parse(html string, pageURL string) (Page, error)
}

// Page は、解析済みの1ページです。該当要素がない場合は空の結果を返し、失敗しません。
type Page interface {
	// CompetitionName はページヘッダーから大会の表示名を返します。見つからない場合は空文字列です。
	CompetitionName() string
	// ClassName は、指定クラスへのリンクの表示テキストを返します。見つからない場合は空文字列です。
	ClassName(classSlug string) string
	// Classes は、ページ内のクラスへのリンクを文書順に返します。
	// competitionSlug が空でない場合は、その大会のリンクのみを対象とします。
	Classes(competitionSlug string) []types.ClassInfo
	// Days は、指定クラスのデイリー結果ページへのリンクを文書順に返します。
	Days(competitionSlug, classSlug string) []types.DayInfo
	// Files は、IGCファイルのダウンロードリンクとコールサインを文書順に返します。
	Files() []FileLink
}

// FileLink は、IGCファイルのダウンロードURLとそれに付随するコールサインです。
type FileLink struct {
	URL      string
	Callsign string
}

// ExtractError は、ドキュメントが読み取れない/解析できない場合のエラーです。
type ExtractError struct {
	URL string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("HTML解析に失敗しました (URL: %s): %v", e.URL, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
