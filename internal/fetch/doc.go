// Package fetch loads pages into documents.
//
// HTTPLoader fetches over HTTP and can route through a SOCKS5 proxy,
// FileLoader reads local files, RodLoader renders pages in headless Chrome
// and EmbeddedTor starts a private Tor daemon for .onion targets. Router
// picks one of them per target.
package fetch
