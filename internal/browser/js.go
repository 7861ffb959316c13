// File: internal/browser/js.go
package browser

// The page-side half of the backend. Each snippet is an IIFE evaluated in the
// page, parameterized by a JSON locator literal spliced in by the Go side.
// Roles follow a pragmatic subset of the ARIA mapping: explicit role
// attributes win, then the tag name decides.

const roleHelpersJS = `
	const roleOf = (el) => {
		const explicit = el.getAttribute('role');
		if (explicit) return explicit;
		const tag = el.tagName.toLowerCase();
		switch (tag) {
			case 'a': return el.hasAttribute('href') ? 'link' : 'generic';
			case 'button': return 'button';
			case 'input': {
				const t = (el.getAttribute('type') || 'text').toLowerCase();
				if (t === 'submit' || t === 'button' || t === 'reset' || t === 'image') return 'button';
				if (t === 'checkbox') return 'checkbox';
				if (t === 'radio') return 'radio';
				if (t === 'search') return 'searchbox';
				if (t === 'hidden') return 'generic';
				return 'textbox';
			}
			case 'textarea': return 'textbox';
			case 'select': return 'combobox';
			case 'article': return 'article';
			case 'nav': return 'navigation';
			case 'main': return 'main';
			case 'img': return 'img';
			case 'h1': case 'h2': case 'h3': case 'h4': return 'heading';
			default: return 'generic';
		}
	};
	const nameOf = (el) => (
		el.getAttribute('aria-label') ||
		el.getAttribute('name') ||
		el.getAttribute('placeholder') ||
		el.getAttribute('title') ||
		''
	).trim().slice(0, 80);
	const textOf = (el) => ((el.innerText || el.value || '') + '').trim().replace(/\s+/g, ' ').slice(0, 80);
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	const norm = (s) => (s || '').toLowerCase();
	const matches = (el, want) => {
		const role = roleOf(el);
		if (want.role && role !== want.role && !(want.role === 'textbox' && role === 'searchbox')) return false;
		if (want.name && !norm(nameOf(el)).includes(norm(want.name))) return false;
		if (want.text && !(norm(textOf(el)) + ' ' + norm(nameOf(el))).includes(norm(want.text))) return false;
		if (want.near) {
			const anchor = norm(el.closest('section,article,form,div')?.innerText || '');
			if (!anchor.includes(norm(want.near))) return false;
		}
		return true;
	};
	const poolFor = (want) => {
		if (want.css) return Array.from(document.querySelectorAll(want.css));
		return Array.from(document.querySelectorAll(
			'a[href],button,input,textarea,select,article,nav,main,h1,h2,h3,h4,[role],[contenteditable=true]'
		));
	};
`

// findElementsJS returns up to maxFindResults compact element descriptors.
const findElementsJS = `(() => {` + roleHelpersJS + `
	const want = %s;
	const out = [];
	for (const el of poolFor(want)) {
		if (!visible(el)) continue;
		if (!matches(el, want)) continue;
		out.push({ i: out.length, role: roleOf(el), name: nameOf(el), text: textOf(el) });
		if (out.length >= %d) break;
	}
	return out;
})()`

// markTargetJS tags the nth matching element with the marker attribute so the
// Go side can address it with a plain CSS selector. Returns true on a hit.
const markTargetJS = `(() => {` + roleHelpersJS + `
	const want = %s;
	document.querySelectorAll('[data-webpilot-target]').forEach(e => e.removeAttribute('data-webpilot-target'));
	let idx = 0;
	for (const el of poolFor(want)) {
		if (!visible(el)) continue;
		if (!matches(el, want)) continue;
		if (idx === (want.nth || 0)) {
			el.setAttribute('data-webpilot-target', '1');
			return true;
		}
		idx++;
	}
	return false;
})()`

// countMatchesJS reports whether at least one element matches; used by
// locator-based waits.
const countMatchesJS = `(() => {` + roleHelpersJS + `
	const want = %s;
	for (const el of poolFor(want)) {
		if (visible(el) && matches(el, want)) return true;
	}
	return false;
})()`

// selectValueJS sets a select-like target's value and fires the events
// frameworks listen for.
const selectValueJS = `(() => {
	const el = document.querySelector('[data-webpilot-target]');
	if (!el) return false;
	el.value = %s;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`

// extractTextJS pulls readable text. Mode "article" prefers semantic content
// containers; "full" takes the whole body.
const extractTextJS = `(() => {
	const sel = %s;
	if (sel) {
		const el = document.querySelector(sel);
		return el ? (el.innerText || '').trim().slice(0, %d) : '';
	}
	if (%t) {
		const el = document.querySelector('article') ||
			document.querySelector('main') ||
			document.querySelector('[role=main]') ||
			document.body;
		return el ? (el.innerText || '').trim().slice(0, %d) : '';
	}
	return document.body ? (document.body.innerText || '').trim().slice(0, %d) : '';
})()`

// focusedElementJS summarizes document.activeElement, or null when focus sits
// on the body.
const focusedElementJS = `(() => {` + roleHelpersJS + `
	const el = document.activeElement;
	if (!el || el === document.body) return null;
	return { role: roleOf(el), name: nameOf(el), isVisible: visible(el) };
})()`

// pageExcerptJS produces the short visible-text snippet for observations.
const pageExcerptJS = `(() => {
	return document.body ? (document.body.innerText || '').trim().replace(/\s+/g, ' ').slice(0, %d) : '';
})()`

const scrollJS = `window.scrollBy({ top: %d, behavior: 'instant' })`
