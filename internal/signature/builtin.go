package signature

// Default returns the built-in table of common front-end technologies.
func Default() *Table {
	table, err := NewTable(
		MustCompile("React", `(?i)react(-dom)?(\.production)?(\.min)?\.js`, `data-reactroot`, `__REACT_DEVTOOLS_GLOBAL_HOOK__`, `(?i)\breact\b`),
		MustCompile("Next.js", `__NEXT_DATA__`, `/_next/static/`),
		MustCompile("Vue.js", `(?i)vue(\.runtime)?(\.global)?(\.prod)?(\.min)?\.js`, `data-v-[0-9a-f]{8}`, `__VUE__`),
		MustCompile("Nuxt.js", `__NUXT__`, `/_nuxt/`),
		MustCompile("Angular", `ng-version=`, `(?i)angular(\.min)?\.js`, `ng-app`),
		MustCompile("Svelte", `svelte-[a-z0-9]{6}`, `__svelte`),
		MustCompile("jQuery", `(?i)jquery[.-]?(\d+\.\d+\.\d+)?(\.min)?\.js`, `jQuery\.fn\.`),
		MustCompile("Bootstrap", `(?i)bootstrap(\.bundle)?(\.min)?\.(css|js)`),
		MustCompile("Tailwind CSS", `(?i)tailwindcss`, `--tw-[a-z-]+:`),
		MustCompile("WordPress", `/wp-content/`, `/wp-includes/`),
		MustCompile("Shopify", `cdn\.shopify\.com`, `Shopify\.theme`),
		MustCompile("Google Analytics", `google-analytics\.com/(analytics|ga)\.js`, `gtag\(['"]config['"],\s*['"](G|UA)-`),
		MustCompile("Google Tag Manager", `googletagmanager\.com/gtm\.js`, `GTM-[A-Z0-9]{4,}`),
		MustCompile("Hotjar", `static\.hotjar\.com`, `_hjSettings`),
		MustCompile("Segment", `cdn\.segment\.com/analytics\.js`),
		MustCompile("Stripe", `js\.stripe\.com`),
		MustCompile("Font Awesome", `(?i)font-?awesome`),
		MustCompile("Webpack", `webpackJsonp`, `__webpack_require__`),
		MustCompile("Vite", `/@vite/client`, `import\.meta\.hot`),
	)
	if err != nil {
		panic(err)
	}
	return table
}
