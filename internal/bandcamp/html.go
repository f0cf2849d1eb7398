// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package bandcamp

import (
	"io"

	"golang.org/x/net/html"
)

// attrFromToken returns the value of attr key on an html.Token.
func attrFromToken(token html.Token, key string) (string, bool) {
	for _, a := range token.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// findBlob walks the document tree for an element whose id attribute is
// one of ids and returns the value of its data-blob attribute. This is
// how Bandcamp embeds page state at the three known attachment points:
// "pagedata", "collectors-data", "subscription-collectors-data".
func findBlob(body io.Reader, ids ...string) (matchedID, blob string, found bool) {
	tokenizer := html.NewTokenizer(body)
	for {
		if tokenizer.Next() == html.ErrorToken {
			return "", "", false
		}
		token := tokenizer.Token()
		idValue, hasID := attrFromToken(token, "id")
		if !hasID {
			continue
		}
		for _, candidate := range ids {
			if idValue == candidate {
				if blobValue, ok := attrFromToken(token, "data-blob"); ok {
					return idValue, blobValue, true
				}
			}
		}
	}
}

// findMetaContent looks for <meta name="..." content="..."> and returns
// its content attribute. Used for <meta name="bc-page-properties">.
func findMetaContent(body io.Reader, metaName string) (string, bool) {
	tokenizer := html.NewTokenizer(body)
	for {
		if tokenizer.Next() == html.ErrorToken {
			return "", false
		}
		token := tokenizer.Token()
		if token.Data != "meta" {
			continue
		}
		if name, ok := attrFromToken(token, "name"); ok && name == metaName {
			if content, ok := attrFromToken(token, "content"); ok {
				return content, true
			}
		}
	}
}

// hasElementWithID reports whether the document contains any element
// whose id attribute equals id, regardless of its other attributes —
// used to tell "no collectors block at all" (a page error) apart from
// "this is a subscription, which is deliberately not crawled".
func hasElementWithID(body io.Reader, id string) bool {
	tokenizer := html.NewTokenizer(body)
	for {
		if tokenizer.Next() == html.ErrorToken {
			return false
		}
		token := tokenizer.Token()
		if v, ok := attrFromToken(token, "id"); ok && v == id {
			return true
		}
	}
}
