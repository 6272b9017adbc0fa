// Package main provides the entry point for the toxguard CLI.
//
// toxguard finds toxic text in web pages and cloaks it behind a banner until
// the reader asks to see it.
//
// Usage:
//
//	toxguard scan https://example.com/thread ./saved.html
//	toxguard serve
//	toxguard popup
//
// See --help for all available options.
package main

func main() {
	Execute()
}
