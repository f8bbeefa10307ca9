package extract

// JavaScript evaluated in the page. Every script is a function expression.
const (
	scrollHeightJS = `() => document.body.scrollHeight`

	scrollToBottomJS = `() => window.scrollTo(0, document.body.scrollHeight)`

	// collectAnchorsJS reads anchors without touching the DOM.
	collectAnchorsJS = `() => Array.from(document.querySelectorAll('a')).map(a => ({
		href: a.href || '',
		text: (a.innerText || a.textContent || '').trim(),
		html: a.outerHTML || ''
	}))`

	// extractAndPruneJS collects anchors, then shrinks the document: images are
	// removed, block elements entirely above the buffer window are swapped for
	// empty placeholders of the same size, hidden elements are emptied and
	// inline handlers are dropped.
	extractAndPruneJS = `(buffer) => {
		const links = Array.from(document.querySelectorAll('a')).map(a => ({
			href: a.href || '',
			text: a.textContent || '',
			html: a.outerHTML || ''
		}));

		document.querySelectorAll('img').forEach(img => img.remove());

		const cleanupHeight = window.scrollY - buffer;
		if (cleanupHeight > 0) {
			document.querySelectorAll('div, section, article, aside, footer').forEach(el => {
				const rect = el.getBoundingClientRect();
				if (rect.bottom + window.scrollY < cleanupHeight && el.parentNode) {
					const placeholder = document.createElement('div');
					placeholder.style.height = rect.height + 'px';
					placeholder.style.width = rect.width + 'px';
					el.parentNode.replaceChild(placeholder, el);
				}
			});
		}

		document.querySelectorAll('[style*="display:none"], [style*="display: none"], [hidden]')
			.forEach(el => { el.innerHTML = ''; });

		document.querySelectorAll('*').forEach(el => {
			el.onclick = null;
			el.onmouseover = null;
			el.onmouseout = null;
		});

		if (window.gc) {
			window.gc();
		}
		return links;
	}`
)
