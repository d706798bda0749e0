package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/shouni/go-igc-fetch/pkg/types"
)

const (
	dateLayout = "2006-01-02"

	// FileExtension は出力ファイルの拡張子です。
	FileExtension = ".igc"

	safeSubstitute = "_"
)

// unsafeChars は、主要なファイルシステムでパス要素に使用できない文字です。
const unsafeChars = `/\:*?"<>|`

// Sanitize は、ファイルシステムで安全に使用できるパス要素に変換します。
// 使用できない文字と制御文字は "_" に置換され、空白は1つにまとめられます。
// Sanitize(Sanitize(x)) == Sanitize(x) が常に成り立ちます。
func Sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case strings.ContainsRune(unsafeChars, r), unicode.IsControl(r):
			b.WriteString(safeSubstitute)
		default:
			b.WriteRune(r)
		}
	}

	result := strings.Join(strings.Fields(b.String()), " ")
	// 先頭と末尾のドットと空白は、隠しファイルや "." / ".." を生まないように取り除く
	result = strings.Trim(result, ". ")
	if result == "" {
		return safeSubstitute
	}
	return result
}

// DatePrefix は、日付 (YYYY-MM-DD) からIGCファイル名の日付コードを生成します。
//
// 形式: {西暦の末尾1桁}{月}{日の文字}
//
// 日の文字は 1〜9 日が数字、10〜31 日が A〜V (A=10, B=11, ..., V=31) です。
// 月は10進数でそのまま書かれます (例: 2023-12-09 → "3129")。
func DatePrefix(date string) (string, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", fmt.Errorf("日付の形式が不正です (%q): %w", date, err)
	}

	day := d.Day()
	var dayChar rune
	if day <= 9 {
		dayChar = rune('0' + day)
	} else {
		dayChar = rune('A' + day - 10)
	}

	return fmt.Sprintf("%d%d%c", d.Year()%10, int(d.Month()), dayChar), nil
}

// Namer は、DownloadTask を出力パスに対応付けます。同じ入力には常に同じパスを返します。
type Namer struct{}

// FileName は "<date_prefix>_<callsign>.igc" 形式のファイル名を返します。
func (Namer) FileName(task types.DownloadTask) (string, error) {
	prefix, err := DatePrefix(task.Date)
	if err != nil {
		return "", err
	}
	return prefix + "_" + Sanitize(task.Callsign) + FileExtension, nil
}

// Path は、outputRoot/<大会>/<クラス>/<日付>/<date_prefix>_<callsign>.igc を返します。
func (n Namer) Path(task types.DownloadTask, outputRoot string) (string, error) {
	name, err := n.FileName(task)
	if err != nil {
		return "", err
	}
	return filepath.Join(
		outputRoot,
		Sanitize(task.CompetitionName),
		Sanitize(task.ClassName),
		task.Date,
		name,
	), nil
}
