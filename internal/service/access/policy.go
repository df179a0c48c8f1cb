package access

import (
	"encoding/json"
	"fmt"
	"slices"
)

// GrantStatementID は統合されたOAI許可ステートメントのSid
const GrantStatementID = "AllowOriginAccessIdentities"

// legacyStatementID は条件が空のまま残っている旧形式のステートメント
const legacyStatementID = "AllowCloudFrontServicePrincipal"

const policyVersion = "2012-10-17"

// IdentityPrincipal はOAIのIAMプリンシパルARNを返します
func IdentityPrincipal(identityID string) string {
	return "arn:aws:iam::cloudfront:user/CloudFront Origin Access Identity " + identityID
}

// Statement はポリシーステートメント。未知のフィールドを保持するためマップで扱います
type Statement map[string]any

// PolicyDocument はS3バケットポリシー
type PolicyDocument struct {
	Version   string      `json:"Version"`
	ID        string      `json:"Id,omitempty"`
	Statement []Statement `json:"Statement"`
}

// ParsePolicy はバケットポリシーを読み込みます。空文字列は空のポリシーとして扱います
func ParsePolicy(raw string) (*PolicyDocument, error) {
	doc := &PolicyDocument{Version: policyVersion}
	if raw == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, fmt.Errorf("バケットポリシーの解析に失敗: %w", err)
	}
	if doc.Version == "" {
		doc.Version = policyVersion
	}
	return doc, nil
}

// String はポリシーをJSON文字列にします
func (d *PolicyDocument) String() string {
	b, _ := json.Marshal(d)
	return string(b)
}

// IsEmpty はステートメントが1つもないかを返します
func (d *PolicyDocument) IsEmpty() bool {
	return len(d.Statement) == 0
}

// Grant は identityID にバケットの読み取りを許可します。
// 既存の同一OAIのエントリと条件が空の旧ステートメントを取り除き、
// 既存のOAIプリンシパルと合わせて1つのステートメントに統合します
func (d *PolicyDocument) Grant(bucket, identityID string) {
	principal := IdentityPrincipal(identityID)

	var merged []string
	kept := make([]Statement, 0, len(d.Statement)+1)
	for _, st := range d.Statement {
		if isMalformedLegacy(st) {
			continue
		}
		if st.sid() == GrantStatementID {
			for _, p := range st.awsPrincipals() {
				if p != principal && !slices.Contains(merged, p) {
					merged = append(merged, p)
				}
			}
			continue
		}
		if st.removePrincipal(principal) && len(st.awsPrincipals()) == 0 && !st.hasOtherPrincipal() {
			continue
		}
		kept = append(kept, st)
	}
	merged = append(merged, principal)

	kept = append(kept, Statement{
		"Sid":       GrantStatementID,
		"Effect":    "Allow",
		"Principal": map[string]any{"AWS": principalValue(merged)},
		"Action":    "s3:GetObject",
		"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
	})
	d.Statement = kept
}

// Revoke は identityID のプリンシパルをすべてのステートメントから取り除きます。
// プリンシパルが空になったステートメントは削除します
func (d *PolicyDocument) Revoke(identityID string) (changed bool) {
	principal := IdentityPrincipal(identityID)
	kept := make([]Statement, 0, len(d.Statement))
	for _, st := range d.Statement {
		if st.removePrincipal(principal) {
			changed = true
			if len(st.awsPrincipals()) == 0 && !st.hasOtherPrincipal() {
				continue
			}
		}
		kept = append(kept, st)
	}
	d.Statement = kept
	return changed
}

// HasGrant は identityID が許可されているかを返します
func (d *PolicyDocument) HasGrant(identityID string) bool {
	principal := IdentityPrincipal(identityID)
	for _, st := range d.Statement {
		if slices.Contains(st.awsPrincipals(), principal) {
			return true
		}
	}
	return false
}

func (s Statement) sid() string {
	v, _ := s["Sid"].(string)
	return v
}

func (s Statement) principalMap() map[string]any {
	m, _ := s["Principal"].(map[string]any)
	return m
}

func (s Statement) awsPrincipals() []string {
	m := s.principalMap()
	if m == nil {
		return nil
	}
	return toStrings(m["AWS"])
}

// hasOtherPrincipal は AWS 以外のプリンシパル（Service など）や "*" を持つかを返します
func (s Statement) hasOtherPrincipal() bool {
	if v, ok := s["Principal"].(string); ok {
		return v != ""
	}
	for k := range s.principalMap() {
		if k != "AWS" {
			return true
		}
	}
	return false
}

func (s Statement) removePrincipal(principal string) bool {
	m := s.principalMap()
	if m == nil {
		return false
	}
	current := toStrings(m["AWS"])
	if !slices.Contains(current, principal) {
		return false
	}
	rest := slices.DeleteFunc(slices.Clone(current), func(p string) bool { return p == principal })
	if len(rest) == 0 {
		delete(m, "AWS")
	} else {
		m["AWS"] = principalValue(rest)
	}
	return true
}

// isMalformedLegacy は AWS:SourceArn 条件が空のサービスプリンシパル許可を判定します
func isMalformedLegacy(s Statement) bool {
	if s.sid() != legacyStatementID {
		return false
	}
	cond, _ := s["Condition"].(map[string]any)
	if len(cond) == 0 {
		return true
	}
	for _, op := range cond {
		kv, _ := op.(map[string]any)
		if v, ok := kv["AWS:SourceArn"]; ok {
			arns := toStrings(v)
			return len(arns) == 0 || (len(arns) == 1 && arns[0] == "")
		}
	}
	return false
}

// プリンシパルが1件なら文字列、複数ならリストで表す
func principalValue(principals []string) any {
	if len(principals) == 1 {
		return principals[0]
	}
	out := make([]any, len(principals))
	for i, p := range principals {
		out[i] = p
	}
	return out
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
