package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shouni/go-igc-fetch/pkg/types"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Fetcher は、ダウンロード対象のファイル本体を取得する機能のインターフェースです。
// *httpclient.Client はこのインターフェースを満たします。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

var (
	// ErrIO は、ファイルシステム操作の失敗を示します。
	ErrIO = errors.New("ファイルの書き込みに失敗しました")
	// ErrDownload は、書き込み時のダウンロードの失敗を示します。
	ErrDownload = errors.New("ファイルのダウンロードに失敗しました")
)

// WriteError は、1ファイル分の書き込み失敗です。Kind は ErrIO または ErrDownload です。
type WriteError struct {
	Kind error
	Path string
	URL  string
	Err  error
}

func (e *WriteError) Error() string {
	if e.Kind == ErrDownload {
		return fmt.Sprintf("%v (URL: %s): %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("%v (パス: %s): %v", e.Kind, e.Path, e.Err)
}

// Unwrap は Kind と元のエラーの両方を返し、errors.Is(err, ErrIO) と errors.As(err, &fetchErr) を両立させます。
func (e *WriteError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Writer は、DownloadTask ごとにファイルを取得し、出力ツリーに書き込みます。
// 同じパスへの2回目以降の書き込みは上書きされ、警告として記録されます。
type Writer struct {
	fetcher Fetcher
	namer   Namer
	logger  *zap.Logger
	written map[string]string // パス -> 直前に書き込んだURL
}

// NewWriter は、新しい Writer を生成します。logger が nil の場合はログを出力しません。
func NewWriter(fetcher Fetcher, logger *zap.Logger) (*Writer, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("storage.NewWriter: Fetcher cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		fetcher: fetcher,
		logger:  logger,
		written: make(map[string]string),
	}, nil
}

// Path は、タスクの出力パスを返します (ダウンロードは行いません)。
func (w *Writer) Path(task types.DownloadTask, outputRoot string) (string, error) {
	path, err := w.namer.Path(task, outputRoot)
	if err != nil {
		return "", &WriteError{Kind: ErrIO, URL: task.URL, Err: err}
	}
	return path, nil
}

// Write は、タスクのファイルをダウンロードして出力パスに書き込み、そのパスを返します。
func (w *Writer) Write(ctx context.Context, task types.DownloadTask, outputRoot string) (string, error) {
	// 1. 出力パスの決定
	path, err := w.Path(task, outputRoot)
	if err != nil {
		return "", err
	}

	// 2. ダウンロード
	data, err := w.fetcher.FetchBytes(ctx, task.URL)
	if err != nil {
		return "", &WriteError{Kind: ErrDownload, Path: path, URL: task.URL, Err: err}
	}

	// 3. ディレクトリの作成 (途中まで作成されたディレクトリはロールバックしない)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return "", &WriteError{Kind: ErrIO, Path: path, URL: task.URL, Err: err}
	}

	// 4. 一時ファイル経由で書き込み
	if err := writeFileAtomic(path, data); err != nil {
		return "", &WriteError{Kind: ErrIO, Path: path, URL: task.URL, Err: err}
	}

	if previous, dup := w.written[path]; dup {
		w.logger.Warn("同じ出力パスに書き込まれたため上書きしました",
			zap.String("path", path),
			zap.String("previous_url", previous),
			zap.String("url", task.URL))
	}
	w.written[path] = task.URL

	return path, nil
}

// writeFileAtomic は、同じディレクトリの一時ファイルに書き込んでからリネームします。
// 失敗した場合、一時ファイルは削除されます。
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(filePerm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
