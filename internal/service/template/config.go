package template

import (
	"encoding/json"

	"geocdn/internal/service/common"
)

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, common.NewValidationError("config はJSONオブジェクトである必要があります")
	}
	return m, nil
}

// prepareConfig は config を検証し、証明書の指定を ViewerCertificate と Aliases に反映します。
// 証明書がなく既定のキャッシュ動作がある場合はCloudFrontの既定証明書を使います
func prepareConfig(raw json.RawMessage, cert *Certificate) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, common.NewValidationError("config は必須です")
	}
	cfg, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	minTLS := DefaultMinTLSVersion
	if cert != nil && cert.MinTLSVersion != "" {
		minTLS = cert.MinTLSVersion
	}

	switch {
	case cert != nil && cert.ARN != "" && len(cert.Domains) > 0:
		cfg["ViewerCertificate"] = map[string]any{
			"ACMCertificateArn":      cert.ARN,
			"SSLSupportMethod":       "sni-only",
			"MinimumProtocolVersion": minTLS,
			"CertificateSource":      "acm",
		}
		cfg["Aliases"] = map[string]any{
			"Quantity": len(cert.Domains),
			"Items":    cert.Domains,
		}
		if behavior, ok := cfg["DefaultCacheBehavior"].(map[string]any); ok {
			protocol := cert.ViewerProtocol
			if protocol == "" {
				protocol = DefaultViewerProtocol
			}
			behavior["ViewerProtocolPolicy"] = protocol
		}
	case cfg["DefaultCacheBehavior"] != nil:
		cfg["ViewerCertificate"] = map[string]any{
			"CloudFrontDefaultCertificate": true,
			"MinimumProtocolVersion":       minTLS,
		}
	}

	out, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return out, nil
}
