// Command rewind is the CLI for the session capture and replay pipeline:
// browsing stored sessions, dumping activity timelines, removing
// sessions, running capture simulations against a live store, and
// managing configuration.
package main
