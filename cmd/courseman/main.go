// courseman はオンライン講座マーケットプレイスのチャレンジ参加管理APIサーバー。
//
// サブコマンド:
//
//	serve       APIサーバーを起動する（デフォルト）
//	worker      ライフサイクルスイープワーカーを起動する
//	migrate     データベースマイグレーションを実行する
//	healthcheck 稼働中サーバーのヘルスチェックを行う
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/courseman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "courseman: %v\n", err)
		os.Exit(1)
	}
}
