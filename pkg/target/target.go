package target

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ----------------------------------------------------------------------
// 定数定義
// ----------------------------------------------------------------------

const (
	// Host は、対応する結果公開サイトのホスト名です。
	Host = "www.soaringspot.com"
	// bareHost は www なしのホスト名で、Normalize により Host に補完されます。
	bareHost = "soaringspot.com"

	// DefaultLocale は、正規化後のURLで使用するロケールです。
	DefaultLocale = "en_gb"

	// BaseURL は、相対リンクの解決に使用するサイトのルートURLです。
	BaseURL = "https://" + Host

	resultsSegment = "results"
	totalSegment   = "total"
	dailySegment   = "daily"

	dateLayout = "2006-01-02"
)

var (
	localePattern      = regexp.MustCompile(`^[a-z]{2}(_[a-z]{2})?$`)
	taskSegmentPattern = regexp.MustCompile(`^task-(\d+)-on-(\d{4}-\d{2}-\d{2})$`)
)

// ----------------------------------------------------------------------
// スコープ
// ----------------------------------------------------------------------

// Kind は、クロール範囲の種類を表します。
type Kind int

const (
	KindCompetition Kind = iota + 1
	KindClass
	KindDay
)

func (k Kind) String() string {
	switch k {
	case KindCompetition:
		return "competition"
	case KindClass:
		return "class"
	case KindDay:
		return "day"
	default:
		return "unknown"
	}
}

// ScopeTarget は、入力URLから導出されたクロール範囲です。
// Kind に応じて、以下のフィールドのみが設定されます。
//
//	KindCompetition: CompetitionSlug
//	KindClass:       CompetitionSlug, ClassSlug
//	KindDay:         CompetitionSlug, ClassSlug, Date, TaskLabel, TaskNumber
type ScopeTarget struct {
	Kind            Kind
	CompetitionSlug string
	ClassSlug       string
	Date            string // YYYY-MM-DD
	TaskLabel       string // task-<n>-on-<date>
	TaskNumber      int

	// PageURL は、このスコープのクロール起点となるページの絶対URLです。
	PageURL string
}

// NewCompetition は、大会全体のスコープを生成します。
func NewCompetition(competitionSlug string) ScopeTarget {
	return ScopeTarget{
		Kind:            KindCompetition,
		CompetitionSlug: competitionSlug,
		PageURL:         buildURL(competitionSlug, resultsSegment),
	}
}

// NewClass は、1クラス分のスコープを生成します。
func NewClass(competitionSlug, classSlug string) ScopeTarget {
	return ScopeTarget{
		Kind:            KindClass,
		CompetitionSlug: competitionSlug,
		ClassSlug:       classSlug,
		PageURL:         buildURL(competitionSlug, resultsSegment, classSlug),
	}
}

// NewDay は、1日分のタスクのスコープを生成します。
func NewDay(competitionSlug, classSlug string, taskNumber int, date string) ScopeTarget {
	label := fmt.Sprintf("task-%d-on-%s", taskNumber, date)
	return ScopeTarget{
		Kind:            KindDay,
		CompetitionSlug: competitionSlug,
		ClassSlug:       classSlug,
		Date:            date,
		TaskLabel:       label,
		TaskNumber:      taskNumber,
		PageURL:         buildURL(competitionSlug, resultsSegment, classSlug, label, dailySegment),
	}
}

func (t ScopeTarget) String() string {
	switch t.Kind {
	case KindCompetition:
		return fmt.Sprintf("Competition{%s}", t.CompetitionSlug)
	case KindClass:
		return fmt.Sprintf("Class{%s/%s}", t.CompetitionSlug, t.ClassSlug)
	case KindDay:
		return fmt.Sprintf("Day{%s/%s/%s}", t.CompetitionSlug, t.ClassSlug, t.Date)
	default:
		return "Unknown{}"
	}
}

func buildURL(segments ...string) string {
	return BaseURL + "/" + DefaultLocale + "/" + strings.Join(segments, "/")
}

// ----------------------------------------------------------------------
// エラー定義
// ----------------------------------------------------------------------

var (
	// ErrUnrecognizedShape は、URLのパスがどの既知の形にも一致しないことを示します。
	ErrUnrecognizedShape = errors.New("認識できないURLの形式です")
	// ErrWrongHost は、URLのホストが対応サイトではないことを示します。
	ErrWrongHost = errors.New("対応していないホストです")
)

// ParseError は、URL分類の失敗を表します。errors.Is で ErrUnrecognizedShape / ErrWrongHost と比較できます。
type ParseError struct {
	URL    string
	Kind   error
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%v (URL: %s): %s", e.Kind, e.URL, e.Reason)
	}
	return fmt.Sprintf("%v (URL: %s)", e.Kind, e.URL)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

func shapeError(rawURL, reason string) error {
	return &ParseError{URL: rawURL, Kind: ErrUnrecognizedShape, Reason: reason}
}

// ----------------------------------------------------------------------
// 正規化と分類
// ----------------------------------------------------------------------

// Normalize は、入力URLを正規形 (https, www付きホスト) に変換します。
// スキームがない場合は https:// を補完します。
func Normalize(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, shapeError(rawURL, "URLが空です")
	}

	// 1. スキームの補完
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, shapeError(rawURL, fmt.Sprintf("URLのパースエラー: %v", err))
	}

	// 2. スキームの検証 (http は https に昇格)
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		u.Scheme = "https"
	default:
		return nil, shapeError(rawURL, fmt.Sprintf("無効なURLスキームです: %s", u.Scheme))
	}

	// 3. ホストの検証
	host := strings.ToLower(u.Hostname())
	switch host {
	case Host:
	case bareHost:
		host = Host
	default:
		return nil, &ParseError{URL: rawURL, Kind: ErrWrongHost, Reason: fmt.Sprintf("ホスト %q は %s ではありません", u.Hostname(), Host)}
	}
	u.Host = host
	u.RawQuery = ""
	u.Fragment = ""

	return u, nil
}

// Classify は、入力URLを解析して ScopeTarget を返します。副作用はありません。
func Classify(rawURL string) (ScopeTarget, error) {
	u, err := Normalize(rawURL)
	if err != nil {
		return ScopeTarget{}, err
	}

	t, err := ClassifyPath(u.Path)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.URL = rawURL
		}
		return ScopeTarget{}, err
	}
	return t, nil
}

// ClassifyPath は、サイト内のパス (例: /en_gb/<大会>/results/<クラス>) を分類します。
// ページ内の相対リンクの解析にも利用されます。
func ClassifyPath(path string) (ScopeTarget, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return ScopeTarget{}, shapeError(path, "パスが空です")
	}

	// 1. 先頭セグメントはロケール
	if !localePattern.MatchString(segments[0]) {
		return ScopeTarget{}, shapeError(path, fmt.Sprintf("先頭セグメント %q はロケールではありません", segments[0]))
	}
	rest := segments[1:]
	if len(rest) == 0 {
		return ScopeTarget{}, shapeError(path, "大会のスラッグがありません")
	}

	competition := rest[0]
	rest = rest[1:]

	// 2. ロケール以降のセグメント数で分岐
	switch {
	case len(rest) == 0:
		return NewCompetition(competition), nil

	case rest[0] != resultsSegment:
		return ScopeTarget{}, shapeError(path, fmt.Sprintf("'%s' セグメントが必要です", resultsSegment))

	case len(rest) == 1:
		return NewCompetition(competition), nil

	case len(rest) == 2:
		return NewClass(competition, rest[1]), nil

	case len(rest) == 3 && rest[2] == totalSegment:
		t := NewClass(competition, rest[1])
		t.PageURL += "/" + totalSegment
		return t, nil

	case len(rest) == 4 && rest[3] == dailySegment:
		n, date, ok := ParseTaskSegment(rest[2])
		if !ok {
			return ScopeTarget{}, shapeError(path, fmt.Sprintf("タスクセグメント %q は task-<n>-on-<YYYY-MM-DD> の形式ではありません", rest[2]))
		}
		return NewDay(competition, rest[1], n, date), nil
	}

	return ScopeTarget{}, shapeError(path, "既知のパス形式に一致しません")
}

// ParseTaskSegment は task-<n>-on-<YYYY-MM-DD> 形式のセグメントからタスク番号と日付を取り出します。
// 日付は暦として妥当である必要があります。
func ParseTaskSegment(segment string) (taskNumber int, date string, ok bool) {
	m := taskSegmentPattern.FindStringSubmatch(segment)
	if m == nil {
		return 0, "", false
	}
	if _, err := time.Parse(dateLayout, m[2]); err != nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return n, m[2], true
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
