/*
Package log provides structured logging for kupo, built on zerolog.

A single global logger is initialized once at startup; components obtain
child loggers via WithComponent, which also applies any per-component
severity override (--log-level-<component>). The severity set follows the
CLI contract: Debug, Info, Notice, Warning, Error, Off.
*/
package log
