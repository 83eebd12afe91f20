// Package log provides structured logging for scaled using zerolog.
package log
