package chunk

import (
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

var authPatterns = []string{
	"authenticate", "authorize", "login", "signin", "jwt", "bearer", "oauth",
	"saml", "claims", "identity", "principal", "token", "session", "cookie", "credential",
}
var authDirHints = []string{"identity", "auth", "security"}

var securityPatterns = []string{
	"encrypt", "decrypt", "hash", "salt", "cryptography", "x509", "rsa", "aes", "hmac",
}

// configFilePatterns mark a "startup-file" whose chunks get -config.
var configFilePatterns = []string{
	"main.go", "startup", "program.", "config.", "settings.", "appsettings", "wsgi.py", "asgi.py",
}

var controllerPatterns = []string{"controller"}
var servicePatterns = []string{"service"}

// EnhanceKind inspects text, the file path, and (for controller/service)
// whether k is a class-family kind, and appends at most one domain
// suffix in the fixed precedence auth > security > config > controller >
// service.
func EnhanceKind(k chunktype.Kind, text, path string) chunktype.Kind {
	lowerText := strings.ToLower(text)
	lowerPath := strings.ToLower(filepath.ToSlash(path))
	base := filepath.Base(lowerPath)
	isClass := isClassFamily(k)

	if containsAny(lowerText, authPatterns) || containsAny(lowerPath, authDirHints) {
		return k.WithSuffix(chunktype.SuffixAuth)
	}
	if containsAny(lowerText, securityPatterns) {
		return k.WithSuffix(chunktype.SuffixSecurity)
	}
	if containsAny(base, configFilePatterns) {
		return k.WithSuffix(chunktype.SuffixConfig)
	}
	if isClass && (containsAny(lowerText, controllerPatterns) || strings.Contains(lowerPath, "controller")) {
		return k.WithSuffix(chunktype.SuffixController)
	}
	if isClass && (containsAny(lowerText, servicePatterns) || strings.Contains(lowerPath, "service")) {
		return k.WithSuffix(chunktype.SuffixService)
	}
	return k
}

func isClassFamily(k chunktype.Kind) bool {
	base, _ := k.Split()
	switch base {
	case chunktype.KindClass, chunktype.KindInterface, chunktype.KindRecord, chunktype.KindCStruct:
		return true
	default:
		return false
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
