package masking

// builtinPattern is the definition of one built-in regex masking pattern
// before compilation.
type builtinPattern struct {
	Pattern     string
	Replacement string
	Description string
}

// builtinPatterns enumerates the regex-based categories: password
// assignments, API keys, bearer tokens, AWS key shapes, PEM blocks, SSH
// public keys, and DB URLs carrying userinfo, plus an opt-in PII set gated
// by config.MaskingConfig.MaskPII.
var builtinPatterns = map[string]builtinPattern{
	"password": {
		Pattern:     `(?i)(password|passwd|pwd)\s*[:=]\s*["']?[^\s"']{3,}["']?`,
		Replacement: "$1=[MASKED_PASSWORD]",
		Description: "Password assignments in key=value or key: value form",
	},
	"api_key": {
		Pattern:     `(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?[A-Za-z0-9_\-]{16,}["']?`,
		Replacement: "$1=[MASKED_API_KEY]",
		Description: "Generic API key assignments",
	},
	"bearer_token": {
		Pattern:     `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`,
		Replacement: "Bearer [MASKED_TOKEN]",
		Description: "HTTP Authorization: Bearer tokens",
	},
	"token": {
		Pattern:     `(?i)(token|secret)\s*[:=]\s*["']?[A-Za-z0-9_\-.]{12,}["']?`,
		Replacement: "$1=[MASKED_TOKEN]",
		Description: "Generic token/secret assignments",
	},
	"aws_access_key": {
		Pattern:     `\bAKIA[0-9A-Z]{16}\b`,
		Replacement: "[MASKED_AWS_ACCESS_KEY]",
		Description: "AWS access key ID shape",
	},
	"aws_secret_key": {
		Pattern:     `(?i)aws_secret_access_key\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`,
		Replacement: "aws_secret_access_key=[MASKED_AWS_SECRET_KEY]",
		Description: "AWS secret access key assignment",
	},
	"private_key": {
		Pattern:     `(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`,
		Replacement: "[MASKED_PRIVATE_KEY]",
		Description: "PEM-encoded private key block",
	},
	"certificate_authority_data": {
		Pattern:     `(?i)(certificate-authority-data|client-certificate-data|client-key-data)\s*:\s*[A-Za-z0-9+/=]{20,}`,
		Replacement: "$1: [MASKED_CERT_DATA]",
		Description: "Base64 certificate/key data in kubeconfig-style YAML",
	},
	"ssh_public_key": {
		Pattern:     `\bssh-(rsa|ed25519|dss|ecdsa-[a-z0-9-]+)\s+[A-Za-z0-9+/]+=*(\s+\S+)?`,
		Replacement: "[MASKED_SSH_PUBLIC_KEY]",
		Description: "SSH public key in authorized_keys format",
	},
	"db_url_userinfo": {
		Pattern:     `([a-zA-Z][a-zA-Z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`,
		Replacement: "${1}[MASKED_USER]:[MASKED_PASSWORD]@",
		Description: "Userinfo embedded in a connection URL",
	},
	"email": {
		Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		Replacement: "[MASKED_EMAIL]",
		Description: "Email address (PII, opt-in)",
	},
	"credit_card": {
		Pattern:     `\b(?:\d[ -]*?){13,16}\b`,
		Replacement: "[MASKED_CARD]",
		Description: "Credit card number shape (PII, opt-in)",
	},
	"ssn": {
		Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		Replacement: "[MASKED_SSN]",
		Description: "US Social Security Number shape (PII, opt-in)",
	},
	"ipv4": {
		Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`,
		Replacement: "[MASKED_IPV4]",
		Description: "IPv4 address (PII, opt-in)",
	},
}

// codeMaskerNames lists the structural (non-regex) maskers available by name.
var codeMaskerNames = []string{"kubernetes_secret"}

// builtinPatternGroups names reusable sets of patterns. "baseline" is the
// default group applied when a tenant's MaskingConfig doesn't name one
// explicitly.
var builtinPatternGroups = map[string][]string{
	"baseline": {"password", "api_key", "bearer_token"},
	"secrets":  {"password", "api_key", "bearer_token", "token", "private_key"},
	"cloud":    {"aws_access_key", "aws_secret_key", "db_url_userinfo"},
	"kubernetes": {
		"api_key", "password", "certificate_authority_data", "kubernetes_secret",
	},
	"security": {
		"password", "api_key", "bearer_token", "token", "private_key",
		"ssh_public_key", "db_url_userinfo",
	},
	"pii": {"email", "credit_card", "ssn", "ipv4"},
	"all": {
		"password", "api_key", "bearer_token", "token", "aws_access_key",
		"aws_secret_key", "private_key", "certificate_authority_data",
		"ssh_public_key", "db_url_userinfo", "kubernetes_secret",
		"email", "credit_card", "ssn", "ipv4",
	},
}
