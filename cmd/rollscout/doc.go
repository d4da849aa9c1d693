// Command rollscout discovers, evaluates, and catalogs BJJ instructional
// videos. It is designed to be invoked periodically (for example from cron)
// and keeps all state in a local SQLite database.
package main
