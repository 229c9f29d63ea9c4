// Package sending defines the contracts between the dispatch core and its
// external collaborators: the persistence repository, the delivery executor
// that talks to the actual transport, and the progress event sink.
//
// The dispatch core never imports a concrete transport or database driver;
// it sees only these interfaces. Repository implementations live in
// repository/postgres, executors and sinks are wired in cmd/.
package sending
