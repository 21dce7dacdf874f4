package links

import (
	"fmt"
	"regexp"
	"strings"
)

// urlPattern matches http, https and ftp URLs with a dotted host. Trailing
// punctuation such as '.' or ',' is not part of the match. Group 2 is the
// host; the optional group 3 holds port, path, query and fragment.
var urlPattern = regexp.MustCompile(`(http|ftp|https)://([\w_-]+(?:(?:\.[\w_-]+)+))((?:[\w.,@?^=%&:/~+#-]*[\w@?^=%&/~+#-])?)`)

// ExtractURL returns the leftmost URL in text. Later URLs are ignored.
func ExtractURL(text string) (string, bool) {
	match := urlPattern.FindString(text)
	return match, match != ""
}

// Action is the outcome of evaluating a URL against the rules.
type Action int

const (
	// NoRule means no rule host occurs in the URL.
	NoRule Action = iota
	// AlreadyRewritten means the URL already carries a replacement host.
	AlreadyRewritten
	// RewriteHost means the URL should be rewritten to Decision.Replacement.
	RewriteHost
)

func (a Action) String() string {
	switch a {
	case AlreadyRewritten:
		return "already rewritten"
	case RewriteHost:
		return "rewrite"
	default:
		return "no rule"
	}
}

// Decision is the result of Evaluate.
type Decision struct {
	Action      Action
	Rule        Rule
	Replacement string
}

// Evaluate decides whether rawURL should be rewritten.
// Replacement hosts are checked first, across every rule, so links that
// were already rewritten are left alone; then the first rule whose host
// occurs in rawURL wins.
func Evaluate(rawURL string, rules []Rule) Decision {
	for _, rule := range rules {
		if rule.Replacement != "" && strings.Contains(rawURL, rule.Replacement) {
			return Decision{Action: AlreadyRewritten, Rule: rule}
		}
	}
	for _, rule := range rules {
		if rule.Host != "" && strings.Contains(rawURL, rule.Host) {
			return Decision{Action: RewriteHost, Rule: rule, Replacement: rule.Replacement}
		}
	}
	return Decision{Action: NoRule}
}

// RewriteURL replaces the host of rawURL with newHost. Scheme, port, path,
// query and fragment are kept byte for byte. It also returns the host that
// was replaced. The host is taken lexically, so malformed escapes in the
// path do not prevent a rewrite.
func RewriteURL(rawURL, newHost string) (string, string, error) {
	loc := urlPattern.FindStringSubmatchIndex(rawURL)
	if loc == nil {
		return "", "", fmt.Errorf("no URL found in %q", rawURL)
	}
	hostStart, hostEnd := loc[4], loc[5]

	return rawURL[:hostStart] + newHost + rawURL[hostEnd:], rawURL[hostStart:hostEnd], nil
}

// RewriteMessage replaces every occurrence of oldHost in content with newHost
// and prefixes the author attribution. Every line of the body is
// block-quoted, so multi-line messages stay inside the quote.
func RewriteMessage(content, oldHost, newHost, authorMention string) string {
	body := strings.ReplaceAll(content, oldHost, newHost)
	body = strings.ReplaceAll(body, "\n", "\n> ")
	return fmt.Sprintf("**%s:**\n> %s", authorMention, body)
}

// Rewrite is a planned link rewrite for one message.
type Rewrite struct {
	URL     string
	NewURL  string
	OldHost string
	NewHost string
	Content string
}

// Plan runs extraction and evaluation on a message and, when a rule applies,
// builds the rewritten URL and message. It reports false when there is
// nothing to do.
func Plan(content, authorMention string, rules []Rule) (Rewrite, bool) {
	rawURL, ok := ExtractURL(content)
	if !ok {
		return Rewrite{}, false
	}

	decision := Evaluate(rawURL, rules)
	if decision.Action != RewriteHost {
		return Rewrite{}, false
	}

	newURL, oldHost, err := RewriteURL(rawURL, decision.Replacement)
	if err != nil {
		return Rewrite{}, false
	}

	return Rewrite{
		URL:     rawURL,
		NewURL:  newURL,
		OldHost: oldHost,
		NewHost: decision.Replacement,
		Content: RewriteMessage(content, oldHost, decision.Replacement, authorMention),
	}, true
}
