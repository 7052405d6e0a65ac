// Package webhook はWebhook受信時のリンク解決とアクション実行を提供する。
// 旧形式（ボディ解析によるリポジトリ解決）と現行形式（パス内リンクID）の
// 両方の受信エンドポイントがこのパッケージのディスパッチャーを共有する。
package webhook

import (
	"encoding/json"
	"fmt"
)

// pushPayload はプロバイダーのpushイベントペイロードのうち
// リンク解決に必要な部分。
type pushPayload struct {
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			// pushイベントではname、その他のイベントではloginが設定される
			Name  string `json:"name"`
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// ResolvePushRepository はpushイベントペイロードからリポジトリのowner/nameを抽出する。
// 旧Webhook受信エンドポイントでのリンク解決に使用する。
func ResolvePushRepository(payload []byte) (owner, name string, err error) {
	var p pushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", "", fmt.Errorf("ペイロードの解析に失敗しました: %w", err)
	}

	owner = p.Repository.Owner.Name
	if owner == "" {
		owner = p.Repository.Owner.Login
	}
	name = p.Repository.Name

	if owner == "" || name == "" {
		return "", "", fmt.Errorf("ペイロードにリポジトリ情報が含まれていません")
	}

	return owner, name, nil
}
