package creative

import (
	"strings"

	"github.com/castora/adops/internal/meta"
)

// failureClass is the outcome of classifying a creative publish failure.
// Only identity-class failures may advance the fallback chain.
type failureClass int

const (
	classOther failureClass = iota
	classIdentity
	classFormatting
)

// identitySubCodes are platform sub-codes observed when a creative is
// rejected over identity linking rather than content. The set is
// account-dependent and undocumented; these are the ones seen in the wild.
var identitySubCodes = map[int]bool{
	1885183: true,
	1885272: true,
	2446036: true,
	2446307: true,
}

// identityCodes are top-level codes that indicate a permission or identity
// problem regardless of sub-code.
var identityCodes = map[int]bool{
	10:  true, // permission denied
	200: true, // requires extended permission
}

var identityVocabulary = []string{
	"instagram", "identity", "actor", "account", "permission", "page not linked", "authorized",
}

var formattingVocabulary = []string{
	"thumbnail", "video", "aspect", "ratio", "format", "url", "image",
}

// classify maps a publish failure to a failureClass. The rule is strict:
// a failure is identity-related only if its code/sub-code is in the known
// rejection set or its message matches identity vocabulary, and its message
// does not match formatting vocabulary. Formatting and unclassified
// failures must propagate without any fallback attempt.
func classify(err error) failureClass {
	apiErr, ok := meta.AsAPIError(err)
	if !ok {
		return classOther
	}

	msg := strings.ToLower(apiErr.Message)
	for _, word := range formattingVocabulary {
		if strings.Contains(msg, word) {
			return classFormatting
		}
	}

	if identitySubCodes[apiErr.SubCode] || identityCodes[apiErr.Code] {
		return classIdentity
	}
	for _, word := range identityVocabulary {
		if strings.Contains(msg, word) {
			return classIdentity
		}
	}
	return classOther
}
