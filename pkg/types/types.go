package types

// CompetitionInfo は、クロール中に解決された大会の表示名とスラッグを保持します。
type CompetitionInfo struct {
	Name string // ページヘッダーから取得した表示名
	Slug string // URLパス上の識別子
}

// ClassInfo は、大会に属するクラス（例: club, standard）を表します。
type ClassInfo struct {
	Name string
	Slug string
	URL  string // クラスの結果ページ (絶対URL)
}

// DayInfo は、クラスに属する1日分のタスク結果ページを表します。
type DayInfo struct {
	Date       string // YYYY-MM-DD
	Label      string // task-<n>-on-<date>
	TaskNumber int
	URL        string // デイリー結果ページ (絶対URL)
}

// DownloadTask は、1つのIGCファイルのダウンロード指示です。
// Crawler が生成し、Writer がちょうど1回だけ消費します。
type DownloadTask struct {
	URL             string
	CompetitionName string
	ClassName       string
	Date            string
	Callsign        string
}

// DownloadResult は、DownloadTask の処理結果、またはその処理中に発生したエラーを保持します。
type DownloadResult struct {
	Task  DownloadTask
	Path  string // 書き込み先 (dry-run の場合は予定パス)
	Error error
}

// Summary は、ダウンロード全体の件数集計です。
type Summary struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Summarize は、結果の一覧から Summary を集計します。
func Summarize(results []DownloadResult) Summary {
	s := Summary{Attempted: len(results)}
	for _, r := range results {
		if r.Error != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}
