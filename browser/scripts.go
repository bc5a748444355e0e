package browser

// slideSelectors locate the element holding the current slide, most
// specific first.
var slideSelectors = []string{
	`.preso-view .item.active .page-view`,
	`.preso-view .item.active`,
	`.document-viewer .page.active`,
	`[data-testid="active-page"]`,
}

// jsPageIndicator returns the "N of M" label. Known label elements are
// tried first, then any short visible text node that looks like one.
const jsPageIndicator = `() => {
	const known = ['.page-label', '[data-testid="page-indicator"]', '.toolbar-page-indicator', '#page-number'];
	for (const sel of known) {
		const el = document.querySelector(sel);
		if (el && el.textContent.trim()) return el.textContent.trim();
	}
	const re = /^\s*\d+\s*(of|\/)\s*\d+\s*$/i;
	const walker = document.createTreeWalker(document.body || document.documentElement, NodeFilter.SHOW_TEXT);
	while (walker.nextNode()) {
		const t = walker.currentNode.textContent;
		if (t.length < 24 && re.test(t)) {
			const el = walker.currentNode.parentElement;
			if (el && el.offsetParent !== null) return t.trim();
		}
	}
	return '';
}`

const jsImagesLoaded = `() => Array.from(document.images).every(img => img.complete)`

const jsNavigationStatus = `() => {
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) return entries[0].responseStatus || 0;
	} catch(e) {}
	return 0;
}`

const jsClickNext = `() => {
	const el = document.querySelector('.next-page, .toolbar-next, [aria-label="Next page"], [aria-label="Next"], [data-testid="next-page"]');
	if (el) el.click();
	return !!el;
}`

const jsClickPrev = `() => {
	const el = document.querySelector('.prev-page, .toolbar-prev, [aria-label="Previous page"], [aria-label="Previous"], [data-testid="prev-page"]');
	if (el) el.click();
	return !!el;
}`

// jsAcceptConsent clicks a recognized accept control and reports whether
// one was found.
const jsAcceptConsent = `() => {
	const direct = document.querySelector('#onetrust-accept-btn-handler, #truste-consent-button, [data-testid="cookie-accept"], .cookie-consent-accept');
	if (direct) { direct.click(); return true; }
	const re = /^(accept|accept all|accept cookies|allow all|i agree|agree|got it|ok)$/i;
	const scopes = document.querySelectorAll('[class*="cookie"], [id*="cookie"], [class*="consent"], [id*="consent"], [class*="gdpr"], [id*="gdpr"]');
	for (const scope of scopes) {
		for (const btn of scope.querySelectorAll('button, a, [role="button"]')) {
			if (re.test(btn.textContent.trim())) { btn.click(); return true; }
		}
	}
	return false;
}`

// jsHideConsent hides floating consent banners without touching the
// viewer, which also uses fixed positioning for its toolbar.
const jsHideConsent = `() => {
	const selectors = [
		'[class*="cookie"]', '[id*="cookie"]', '[class*="consent"]', '[id*="consent"]',
		'[class*="gdpr"]', '[id*="gdpr"]', '#onetrust-banner-sdk', '.onetrust-pc-dark-filter',
	];
	let hidden = 0;
	for (const sel of selectors) {
		document.querySelectorAll(sel).forEach(el => {
			if (el.closest('.document-viewer, .preso-view, #viewer')) return;
			const pos = window.getComputedStyle(el).position;
			if (pos === 'fixed' || pos === 'sticky' || pos === 'absolute') {
				el.style.setProperty('display', 'none', 'important');
				hidden++;
			}
		});
	}
	document.documentElement.style.overflow = '';
	if (document.body) document.body.style.overflow = '';
	return hidden;
}`

const jsSubmitForm = `(sel) => {
	const field = document.querySelector(sel);
	const form = field && field.closest('form');
	if (!form) return false;
	const btn = form.querySelector('button[type="submit"], input[type="submit"], button:not([type])');
	if (btn) { btn.click(); return true; }
	if (form.requestSubmit) { form.requestSubmit(); return true; }
	form.submit();
	return true;
}`
