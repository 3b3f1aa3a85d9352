package session

import "regexp"

// MaxRequestTokenLength is the length of a request token as issued by the server.
const MaxRequestTokenLength = 89

var requestTokenPattern = regexp.MustCompile(`(?s)(.*)data-requesttoken="(.*)">(.*)`)

// ExtractRequestToken returns the request token embedded in an HTML page as
// the data-requesttoken attribute, or "" when the page does not carry one.
func ExtractRequestToken(body []byte) string {
	m := requestTokenPattern.FindSubmatch(body)
	if m == nil {
		return ""
	}
	token := m[2]
	if len(token) > MaxRequestTokenLength {
		token = token[:MaxRequestTokenLength]
	}
	return string(token)
}
