package respond

import (
	"regexp"
)

var (
	// GitHub トークンパターン
	// 注意: fine-grained パターンを先に適用する（より具体的なパターンから）
	githubFineGrainedPattern = regexp.MustCompile(`github_pat_[a-zA-Z0-9_]+`)
	githubTokenPattern       = regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{10,}`)

	// Authorization ヘッダーパターン
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]+`)

	// データベースパスワードパターン（DSN内）
	dbPasswordPattern = regexp.MustCompile(`://([^:]+):([^@]+)@`)
)

// SanitizeError は機密情報をマスクしたエラーメッセージを返す
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()

	// トークンのマスク（順序重要: より具体的なパターンから適用）
	msg = githubFineGrainedPattern.ReplaceAllString(msg, "github_pat_****")
	msg = githubTokenPattern.ReplaceAllString(msg, "gh*_****")
	msg = bearerPattern.ReplaceAllString(msg, "Bearer ****")

	// DBパスワードのマスク
	msg = dbPasswordPattern.ReplaceAllString(msg, "://$1:****@")

	return msg
}
