// Package modules is the built-in module library.
//
// Every constructor captures its configuration and returns a core.Module that
// never mutates its input documents.
package modules
