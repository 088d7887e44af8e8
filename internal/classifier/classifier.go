// Package classifier inspects outbound message bodies to find out what they
// were sent for and pulls the embedded payload back out of them.
//
// Matching is tied to the wording of the CRM's SMS templates. A verification
// SMS carries a short code (usually in a verificar-contato/<CODE> link), a
// referral SMS carries a /cadastro/<token> link.
package classifier

import (
	"regexp"
	"strings"
)

type MessageType string

const (
	TypeVerification  MessageType = "verification"
	TypeAffiliateLink MessageType = "affiliate_link"
	TypeUnknown       MessageType = "unknown"
)

var (
	affiliateMarkers    = []string{"/cadastro/", "link de indicacao", "link de indicação"}
	verificationMarkers = []string{"verificar-lider", "verificar-contato", "código", "codigo"}
)

// Classify returns the semantic type of body. Affiliate markers win over
// verification markers.
func Classify(body string) MessageType {
	lower := strings.ToLower(body)
	if containsAny(lower, affiliateMarkers) {
		return TypeAffiliateLink
	}
	if containsAny(lower, verificationMarkers) {
		return TypeVerification
	}
	return TypeUnknown
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

var (
	codeInRoute   = regexp.MustCompile(`verificar-(?:lider|contato)/([A-Za-z0-9]{4,12})`)
	codeAfterWord = regexp.MustCompile(`(?i:c(?:ó|o)digo)\s*(?:(?i:de\s+verifica(?:ção|cao))\s*)?[:\-]?\s*([A-Z0-9]{4,12})\b`)
	standaloneTok = regexp.MustCompile(`\b[A-Z0-9]{5,6}\b`)
)

// codeDenylist holds words whose fragments show up as 5-6 character
// uppercase tokens in template text and must never be taken for a code.
var codeDenylist = []string{
	"HTTPS", "HTTP", "WWW", "DEPUTADO", "DEPUTADA", "VEREADOR", "CADASTRO",
	"VERIFICAR", "CONTATO", "LIDER", "ACESSE", "CODIGO", "CÓDIGO", "OBRIGADO",
	"CAMPANHA", "GABINETE", "WHATSAPP", "BRASIL", "FEDERAL", "ESTADUAL",
}

func denied(candidate string) bool {
	up := strings.ToUpper(candidate)
	for _, w := range codeDenylist {
		if strings.Contains(w, up) {
			return true
		}
	}
	return false
}

// ExtractVerificationCode looks for a code in a verificar-* route, then
// after the word "código", then as any standalone 5-6 character token.
func ExtractVerificationCode(body string) (string, bool) {
	for _, m := range codeInRoute.FindAllStringSubmatch(body, -1) {
		if !denied(m[1]) {
			return m[1], true
		}
	}
	for _, m := range codeAfterWord.FindAllStringSubmatch(body, -1) {
		if !denied(m[1]) {
			return m[1], true
		}
	}
	for _, tok := range standaloneTok.FindAllString(body, -1) {
		if !denied(tok) {
			return tok, true
		}
	}
	return "", false
}

type AffiliateLink struct {
	URL   string
	Token string // empty when the URL has no /cadastro/ segment
}

var (
	cadastroURL = regexp.MustCompile(`https?://[^\s]*?/cadastro/([A-Za-z0-9_\-]+)`)
	anyURL      = regexp.MustCompile(`https?://[^\s]+`)
)

// ExtractAffiliateLink returns the referral link embedded in body.
func ExtractAffiliateLink(body string) (AffiliateLink, bool) {
	if m := cadastroURL.FindStringSubmatch(body); m != nil {
		return AffiliateLink{URL: trimURL(m[0]), Token: m[1]}, true
	}
	if u := anyURL.FindString(body); u != "" {
		if u = trimURL(u); u != "" {
			return AffiliateLink{URL: u}, true
		}
	}
	return AffiliateLink{}, false
}

func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:!?)]}\"'")
}
