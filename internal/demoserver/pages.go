package demoserver

// Page is one demo page with the headers and cookies it is served with.
type Page struct {
	Path        string
	Description string
	HTML        string
	Headers     map[string]string
	Cookies     []CookieDef

	// EscapeQuery controls how the q parameter is echoed back: escaped on
	// well-behaved pages, raw on vulnerable ones.
	EscapeQuery bool
	// SQLErrors makes the page answer a quote in the id parameter with a
	// database error message.
	SQLErrors bool
}

// CookieDef defines a cookie to be set.
type CookieDef struct {
	Name     string
	Value    string
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite string // "Strict", "Lax", "None", or ""
}

// GetAllPages returns all demo page definitions.
func GetAllPages() []Page {
	return []Page{
		goodPage(),
		badPage(),
	}
}

func goodPage() Page {
	return Page{
		Path:        "/good",
		Description: "Page that passes every functional and header check",
		HTML: `<!DOCTYPE html>
<html>
<head>
    <title>Demo Shop</title>
    <meta name="description" content="A tidy demo storefront">
</head>
<body>
    <nav class="main-nav">
        <a href="/good">Home</a>
        <a href="/good#products">Products</a>
        <a href="/good#about">About</a>
    </nav>
    <h1>Welcome to the Demo Shop</h1>
    <img src="/static/logo.png" alt="logo">
    <p>Browse our <a href="/good#products">products</a>.</p>
    <form action="/good" method="get">
        <input type="search" name="q">
        <button type="submit">Search</button>
    </form>
    {{QUERY}}
    <footer><a href="/good#contact">Contact</a></footer>
</body>
</html>`,
		Headers: map[string]string{
			"Content-Security-Policy":   "default-src 'self'",
			"X-Frame-Options":           "DENY",
			"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		},
		Cookies: []CookieDef{
			{Name: "session", Value: "good", Path: "/", HttpOnly: true, Secure: true, SameSite: "Strict"},
		},
		EscapeQuery: true,
	}
}

func badPage() Page {
	return Page{
		Path:        "/bad",
		Description: "Page that fails most checks",
		HTML: `<!DOCTYPE html>
<html>
<head>
    <title></title>
</head>
<body>
    <div>Nothing to see here.</div>
    {{QUERY}}
</body>
</html>`,
		Headers: map[string]string{
			"X-Frame-Options": "SAMEORIGIN",
		},
		Cookies: []CookieDef{
			{Name: "tracking", Value: "bad", Path: "/"},
		},
		SQLErrors: true,
	}
}
