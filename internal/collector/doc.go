// Package collector reads the task database page by page.
package collector
