package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// DOM fingerprints the structure of an HTML snapshot. Tag names are taken
// in document order; form controls also contribute their type and
// visibility, so revealing a passcode field changes the result even when
// the rest of the page does not.
func DOM(htmlStr string) uint64 {
	tags := structureTokens(htmlStr)
	if len(tags) == 0 {
		return 0
	}

	shingles := makeShingles(tags, 3)
	if len(shingles) == 0 {
		return Text(strings.Join(tags, " "))
	}
	return Text(strings.Join(shingles, " "))
}

func structureTokens(htmlStr string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	var tags []string

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			name := string(tn)
			if name == "input" && hasAttr {
				name = inputToken(tokenizer)
			}
			tags = append(tags, name)
		}
	}
}

// inputToken renders an input element as "input:<type>[:hidden]".
func inputToken(z *html.Tokenizer) string {
	typ := "text"
	hidden := false
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "type":
			typ = strings.ToLower(string(val))
		case "style":
			s := strings.ReplaceAll(strings.ToLower(string(val)), " ", "")
			if strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden") {
				hidden = true
			}
		case "hidden":
			hidden = true
		}
		if !more {
			break
		}
	}
	if hidden {
		return "input:" + typ + ":hidden"
	}
	return "input:" + typ
}

// makeShingles creates n-gram shingles from a slice of tokens.
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}

	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], "_"))
	}
	return shingles
}
