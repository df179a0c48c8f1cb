package aws

// Context は認証情報と接続先リージョンを保持
type Context struct {
	Profile string
	Region  string
	// EdgeRegion はLambda@Edgeを配置する固定リージョン
	EdgeRegion string
}
