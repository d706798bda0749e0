package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	textUtils "github.com/shouni/go-utils/text"

	"github.com/shouni/go-igc-fetch/pkg/target"
	"github.com/shouni/go-igc-fetch/pkg/types"
)

// ----------------------------------------------------------------------
// 定数定義 (解析関連のみ)
// ----------------------------------------------------------------------
const (
	downloadPathMarker = "download-contest-flight"

	// popoverSelector は、ダウンロードリンクを含むHTML断片を data-content 属性に持つ要素です。
	popoverSelector = `[data-content*="` + downloadPathMarker + `"]`
	// anchorFileSelector は、ページ本文に直接置かれたファイルリンクです。
	anchorFileSelector = `a[href*="` + downloadPathMarker + `"], a[href$=".igc"], a[href$=".IGC"]`

	resultsLinkSelector = `a[href*="/results/"]`
	dailyLinkSelector   = `a[href*="/daily"]`

	competitionNameSelectors = ".contest-title, header h1, h1"
	callsignAttr             = "data-callsign"

	// PlaceholderPrefix は、コールサインが取得できない場合の代替名の接頭辞です。
	PlaceholderPrefix = "UNKNOWN"
)

// titleSeparators は、<title> からサイト名部分を取り除くための区切り文字です。
var titleSeparators = []string{" :: ", " | ", " - "}

// SoaringSpot は、goquery による構造的クエリで結果ページを解析する Extractor の実装です。
// 代替コールサイン用のカウンターを保持するため、1回の実行につき1インスタンスを生成してください。
type SoaringSpot struct {
	placeholderCount int
}

// NewSoaringSpot は、新しい SoaringSpot のインスタンスを生成します。
func NewSoaringSpot() *SoaringSpot {
	return &SoaringSpot{}
}

// nextPlaceholder は、実行内で一意な代替コールサインを返します。
func (s *SoaringSpot) nextPlaceholder() string {
	s.placeholderCount++
	return fmt.Sprintf("%s%d", PlaceholderPrefix, s.placeholderCount)
}

// Parse は Extractor インターフェースを実装します。
func (s *SoaringSpot) Parse(html string, pageURL string) (Page, error) {
	if strings.TrimSpace(html) == "" {
		return nil, &ExtractError{URL: pageURL, Err: errors.New("ドキュメントが空です")}
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		base, _ = url.Parse(target.BaseURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ExtractError{URL: pageURL, Err: err}
	}

	return &soaringSpotPage{doc: doc, base: base, owner: s}, nil
}

// soaringSpotPage は Page インターフェースの実装です。
type soaringSpotPage struct {
	doc   *goquery.Document
	base  *url.URL
	owner *SoaringSpot
}

// ----------------------------------------------------------------------
// ヘッダー
// ----------------------------------------------------------------------

func (p *soaringSpotPage) CompetitionName() string {
	// 1. 見出し要素
	if name := cleanText(p.doc.Find(competitionNameSelectors).First().Text()); name != "" {
		return name
	}

	// 2. OGPタイトル
	if og, ok := p.doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if name := stripSiteSuffix(cleanText(og)); name != "" {
			return name
		}
	}

	// 3. <title> からサイト名を除いたもの
	return stripSiteSuffix(cleanText(p.doc.Find("title").First().Text()))
}

func stripSiteSuffix(title string) string {
	for _, sep := range titleSeparators {
		if i := strings.LastIndex(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

func (p *soaringSpotPage) ClassName(classSlug string) string {
	var name string
	p.doc.Find(resultsLinkSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		t, ok := p.classify(sel)
		if !ok || t.Kind != target.KindClass || t.ClassSlug != classSlug {
			return true
		}
		name = cleanText(sel.Text())
		return name == ""
	})
	return name
}

// ----------------------------------------------------------------------
// サブリソースのリンク
// ----------------------------------------------------------------------

func (p *soaringSpotPage) Classes(competitionSlug string) []types.ClassInfo {
	var classes []types.ClassInfo
	index := make(map[string]int)

	p.doc.Find(resultsLinkSelector).Each(func(i int, sel *goquery.Selection) {
		t, ok := p.classify(sel)
		if !ok || t.Kind == target.KindCompetition {
			return
		}
		if competitionSlug != "" && t.CompetitionSlug != competitionSlug {
			return
		}

		// クラス単位のリンクのみが表示名とURLを提供する
		var name, link string
		if t.Kind == target.KindClass {
			name = cleanText(sel.Text())
			link = p.resolve(sel.AttrOr("href", ""))
		}

		if idx, seen := index[t.ClassSlug]; seen {
			c := &classes[idx]
			if c.Name == "" {
				c.Name = name
			}
			if c.URL == "" {
				c.URL = link
			}
			return
		}

		index[t.ClassSlug] = len(classes)
		classes = append(classes, types.ClassInfo{Name: name, Slug: t.ClassSlug, URL: link})
	})

	// デイリーリンクからしか見つからなかったクラスは、スラッグから補完する
	for i := range classes {
		c := &classes[i]
		if c.Name == "" {
			c.Name = c.Slug
		}
		if c.URL == "" {
			c.URL = p.rebase(target.NewClass(p.competitionOf(c.Slug, competitionSlug), c.Slug).PageURL)
		}
	}
	return classes
}

func (p *soaringSpotPage) Days(competitionSlug, classSlug string) []types.DayInfo {
	var days []types.DayInfo
	seen := make(map[string]bool)

	p.doc.Find(dailyLinkSelector).Each(func(i int, sel *goquery.Selection) {
		t, ok := p.classify(sel)
		if !ok || t.Kind != target.KindDay || t.ClassSlug != classSlug {
			return
		}
		if competitionSlug != "" && t.CompetitionSlug != competitionSlug {
			return
		}
		if seen[t.TaskLabel] {
			return
		}
		seen[t.TaskLabel] = true

		days = append(days, types.DayInfo{
			Date:       t.Date,
			Label:      t.TaskLabel,
			TaskNumber: t.TaskNumber,
			URL:        p.resolve(sel.AttrOr("href", "")),
		})
	})
	return days
}

// ----------------------------------------------------------------------
// ファイルリンク
// ----------------------------------------------------------------------

func (p *soaringSpotPage) Files() []FileLink {
	var candidates []fileCandidate
	seen := make(map[string]bool)

	add := func(href string, sel *goquery.Selection) {
		link := p.resolve(href)
		if link == "" {
			return
		}
		key := dedupKey(link)
		if seen[key] {
			return
		}
		seen[key] = true

		callsign, fromText := callsignOf(sel)
		candidates = append(candidates, fileCandidate{url: withDownloadFlag(link), callsign: callsign, fromText: fromText})
	}

	// 1. 結果表のセルに埋め込まれたポップオーバー (data-content 属性内のHTML断片)
	p.doc.Find(popoverSelector).Each(func(i int, sel *goquery.Selection) {
		href := popoverDownloadHref(sel.AttrOr("data-content", ""))
		if href == "" {
			return
		}
		add(href, sel)
	})

	// 2. 本文に直接置かれたリンク
	p.doc.Find(anchorFileSelector).Each(func(i int, sel *goquery.Selection) {
		add(sel.AttrOr("href", ""), sel)
	})

	// 3. 表示テキストがページ内で重複する場合 ("Download" など) はコールサインとみなさない
	textCount := make(map[string]int)
	for _, c := range candidates {
		if c.fromText {
			textCount[c.callsign]++
		}
	}

	files := make([]FileLink, 0, len(candidates))
	for _, c := range candidates {
		callsign := c.callsign
		if callsign == "" || (c.fromText && textCount[callsign] > 1) {
			callsign = p.owner.nextPlaceholder()
		}
		files = append(files, FileLink{URL: c.url, Callsign: callsign})
	}
	return files
}

type fileCandidate struct {
	url      string
	callsign string
	fromText bool
}

// popoverDownloadHref は、goquery によりエンティティがデコード済みのHTML断片から
// ダウンロードリンクを取り出します。dl=1 付きのリンクを優先します。
func popoverDownloadHref(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}

	links := doc.Find(`a[href*="` + downloadPathMarker + `"]`)
	if dl := links.FilterFunction(func(i int, s *goquery.Selection) bool {
		return strings.Contains(s.AttrOr("href", ""), "dl=1")
	}); dl.Length() > 0 {
		return dl.First().AttrOr("href", "")
	}
	return links.First().AttrOr("href", "")
}

// callsignOf は、data-callsign 属性 (自身または祖先) を優先し、なければ表示テキストを返します。
// fromText は、値が表示テキスト由来であることを示します。
func callsignOf(sel *goquery.Selection) (callsign string, fromText bool) {
	if v, ok := sel.Attr(callsignAttr); ok && cleanText(v) != "" {
		return cleanText(v), false
	}
	if v, ok := sel.Closest("[" + callsignAttr + "]").Attr(callsignAttr); ok && cleanText(v) != "" {
		return cleanText(v), false
	}
	return cleanText(sel.Text()), true
}

// ----------------------------------------------------------------------
// ヘルパー関数
// ----------------------------------------------------------------------

func cleanText(s string) string {
	return strings.TrimSpace(textUtils.NormalizeText(s))
}

// classify は、アンカーの href をサイト内パスとして分類します。
func (p *soaringSpotPage) classify(sel *goquery.Selection) (target.ScopeTarget, bool) {
	href, ok := sel.Attr("href")
	if !ok {
		return target.ScopeTarget{}, false
	}
	u, err := p.base.Parse(strings.TrimSpace(href))
	if err != nil || u.Host != p.base.Host {
		return target.ScopeTarget{}, false
	}
	t, err := target.ClassifyPath(u.Path)
	if err != nil {
		return target.ScopeTarget{}, false
	}
	return t, true
}

// resolve は、href をページURL基準の絶対URLに変換します。
func (p *soaringSpotPage) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	u, err := p.base.Parse(href)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// rebase は、target パッケージが生成した正規URLをページのホストに付け替えます。
func (p *soaringSpotPage) rebase(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return canonical
	}
	u.Scheme = p.base.Scheme
	u.Host = p.base.Host
	return u.String()
}

// competitionOf は、フィルタ用の大会スラッグが空の場合にページ内のリンクから大会スラッグを推定します。
func (p *soaringSpotPage) competitionOf(classSlug, competitionSlug string) string {
	if competitionSlug != "" {
		return competitionSlug
	}
	var found string
	p.doc.Find(resultsLinkSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if t, ok := p.classify(sel); ok && t.ClassSlug == classSlug {
			found = t.CompetitionSlug
			return false
		}
		return true
	})
	return found
}

// dedupKey は、同一ファイルを指すリンクを同一視するためのキーです。
// 表示/ダウンロードを切り替える dl パラメータのみを無視し、それ以外のクエリは区別します。
func dedupKey(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	q := u.Query()
	q.Del("dl")
	u.RawQuery = q.Encode()
	return u.String()
}

// withDownloadFlag は、ダウンロード用パスに dl=1 を付与し、HTMLではなくファイル本体を取得させます。
func withDownloadFlag(link string) string {
	u, err := url.Parse(link)
	if err != nil || !strings.Contains(u.Path, downloadPathMarker) {
		return link
	}
	q := u.Query()
	q.Set("dl", "1")
	u.RawQuery = q.Encode()
	return u.String()
}
