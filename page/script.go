package page

import (
	"encoding/json"
	"fmt"
)

// findAll resolves a CSS or XPath selector to an array of elements.
const findAll = `(function(sel, xpath) {
	if (!xpath) {
		return Array.from(document.querySelectorAll(sel));
	}
	const snap = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < snap.snapshotLength; i++) {
		out.push(snap.snapshotItem(i));
	}
	return out;
})`

const textOf = `(e) => ((e.innerText || e.textContent || "") + "").trim()`

const (
	readyStateScript  = `document.readyState === "complete"`
	scrollToEndScript = `(window.scrollTo(0, document.body ? document.body.scrollHeight : 0), true)`
)

// firstResult is what the single-element scripts return.
type firstResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func elements(selector string) string {
	return fmt.Sprintf("%s(%s, %t)", findAll, jsString(selector), IsXPath(selector))
}

func allTextScript(selector string) string {
	return fmt.Sprintf("%s.map(%s)", elements(selector), textOf)
}

func allAttrScript(selector, attr string) string {
	return fmt.Sprintf(`%s.map((e) => e.getAttribute(%s) || "")`, elements(selector), jsString(attr))
}

func firstTextScript(selector string) string {
	return fmt.Sprintf(`(function() {
	const els = %s;
	if (els.length === 0) { return {found: false, value: ""}; }
	return {found: true, value: (%s)(els[0])};
})()`, elements(selector), textOf)
}

func firstAttrScript(selector, attr string) string {
	return fmt.Sprintf(`(function() {
	const els = %s;
	if (els.length === 0) { return {found: false, value: ""}; }
	return {found: true, value: els[0].getAttribute(%s) || ""};
})()`, elements(selector), jsString(attr))
}

// clickScript uses HTMLElement.click so overlays cannot intercept it.
func clickScript(selector string) string {
	return fmt.Sprintf(`(function() {
	const els = %s;
	if (els.length === 0) { return false; }
	els[0].click();
	return true;
})()`, elements(selector))
}
