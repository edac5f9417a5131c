// Package process manages external subprocess lifecycles.
//
// Process wraps a single exec.Cmd with output streaming, graceful
// SIGINT-then-SIGKILL shutdown, and pluggable line handling. Supervisor
// adds the restart policy used for data collectors: relaunch on any exit
// after a fixed back-off, until the global stop signal is observed.
package process
