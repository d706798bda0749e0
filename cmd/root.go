package cmd

import (
	"context"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shouni/go-igc-fetch/pkg/config"
)

// --- グローバル定数 ---

const appName = "igc-fetch"

// runOptions は、コマンド実行時に差し替え可能な依存性です (テスト用のスタブサイトなど)。
type runOptions struct {
	// baseURL が設定されている場合、起点ページのスキームとホストを差し替えます。
	baseURL *url.URL
}

// newRootCmd は、ルートコマンドを生成します。
// フラグは viper に束縛され、環境変数 IGC_FETCH_* でも指定できます。
func newRootCmd(opts runOptions) *cobra.Command {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:   appName + " <url>",
		Short: "SoaringSpot の大会結果からIGCフライトログを一括ダウンロードします",
		Long: `SoaringSpot の大会・クラス・日ごとの結果ページのURLを受け取り、
リンクを辿って見つかったIGCファイルを <output>/<大会>/<クラス>/<日付>/ 以下に保存します。`,
		Example: `  igc-fetch https://www.soaringspot.com/en_gb/<大会>/results
  igc-fetch --output ./flights --dry-run https://www.soaringspot.com/en_gb/<大会>/results/club/task-1-on-2025-06-09/daily`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. 設定の読み込み (フラグ > 環境変数 > 既定値)
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			// 2. ロガーの初期化
			logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			defer logger.Sync()

			// 3. メインロジックの実行
			return runDownload(cmd.Context(), cmd.OutOrStdout(), logger, cfg, args[0], opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringP(config.KeyOutput, "o", config.DefaultOutput, "IGCファイルの出力先ディレクトリ")
	flags.Int(config.KeyTimeout, config.DefaultTimeoutSec, "HTTPリクエストのタイムアウト時間（秒）")
	flags.Int(config.KeyMaxRetries, config.DefaultMaxRetries, "ページ取得時の一時的なエラーに対するリトライ最大回数")
	flags.String(config.KeyUserAgent, "", "送信するUser-Agent (空の場合は既定値)")
	flags.BoolP(config.KeyVerbose, "v", false, "詳細なログを出力します")
	flags.Bool(config.KeyDryRun, false, "ダウンロードせず、保存予定のパスのみを表示します")

	// BindPFlags はフラグ名が空でない限り失敗しない
	_ = v.BindPFlags(flags)

	return rootCmd
}

// newLogger は、w に出力する zap ロガーを生成します。verbose の場合はデバッグレベルまで出力します。
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core).Named(appName)
}

// --- エントリポイント ---

// Execute は、ルートコマンドを実行します。
// SIGINT/SIGTERM を受け取ると実行中のクロールとダウンロードを中断し、失敗が1件でもあれば終了コード1で終了します。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd(runOptions{})
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		rootCmd.PrintErrln("エラー:", err)
		os.Exit(1)
	}
	stop()
}
